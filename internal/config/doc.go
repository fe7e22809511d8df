// Package config provides centralized configuration for the EpiPulse
// pipeline. It is a pure data provider: components receive the values they
// need and never read the environment themselves.
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file (EPI_CONFIG_FILE or ./config.yaml)
//	3. Default values (lowest priority)
//
// All environment variables follow the pattern EPI_* for namespacing:
//
//	EPI_DATA_SOURCE_PATH=data/raw/srag_data.csv
//	EPI_DATA_CHUNK_SIZE=10000
//	EPI_METRICS_MORTALITY_DAYS=90
//	EPI_CACHE_TTL=1h
package config
