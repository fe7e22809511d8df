package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration. It is pure data:
// no component behavior lives here.
type Config struct {
	Data       DataConfig       `yaml:"data" envconfig:"DATA"`
	Metrics    MetricsConfig    `yaml:"metrics" envconfig:"METRICS"`
	Classify   ClassifyConfig   `yaml:"classify" envconfig:"CLASSIFY"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Cache      CacheConfig      `yaml:"cache" envconfig:"CACHE"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
}

// DataConfig controls ingestion of the delimited surveillance source.
type DataConfig struct {
	SourcePath string `yaml:"source_path" envconfig:"SOURCE_PATH"`
	ChunkSize  int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE" validate:"gte=100"`
	MaxChunks  int    `yaml:"max_chunks" envconfig:"MAX_CHUNKS" validate:"gte=1"`

	// EssentialColumns is the fixed list the loader filters against what the
	// header actually carries; UsefulColumns are loaded opportunistically.
	EssentialColumns []string `yaml:"essential_columns" envconfig:"ESSENTIAL_COLUMNS"`
	UsefulColumns    []string `yaml:"useful_columns" envconfig:"USEFUL_COLUMNS"`
}

// MetricsConfig holds trailing-window defaults and interpretation limits.
type MetricsConfig struct {
	CaseTrendDays   int `yaml:"case_trend_days" envconfig:"CASE_TREND_DAYS" validate:"gte=1"`
	MortalityDays   int `yaml:"mortality_days" envconfig:"MORTALITY_DAYS" validate:"gte=1"`
	ICUDays         int `yaml:"icu_days" envconfig:"ICU_DAYS" validate:"gte=1"`
	VaccinationDays int `yaml:"vaccination_days" envconfig:"VACCINATION_DAYS" validate:"gte=1"`

	// HistoricalAnchorYears re-anchors the window end to the dataset's own
	// max date when the requested reference is this many years past it.
	HistoricalAnchorYears int `yaml:"historical_anchor_years" envconfig:"HISTORICAL_ANCHOR_YEARS" validate:"gte=1"`
}

// ClassifyConfig holds classification thresholds.
type ClassifyConfig struct {
	YoungAgeThreshold  int `yaml:"young_age_threshold" envconfig:"YOUNG_AGE_THRESHOLD" validate:"gte=0"`
	ElderAgeThreshold  int `yaml:"elder_age_threshold" envconfig:"ELDER_AGE_THRESHOLD" validate:"gte=1"`
	SymptomModerateMin int `yaml:"symptom_moderate_min" envconfig:"SYMPTOM_MODERATE_MIN" validate:"gte=1"`
	SymptomSevereMin   int `yaml:"symptom_severe_min" envconfig:"SYMPTOM_SEVERE_MIN" validate:"gtefield=SymptomModerateMin"`
}

// ValidationConfig holds data-quality thresholds.
type ValidationConfig struct {
	MissingWarnPercent   float64 `yaml:"missing_warn_percent" envconfig:"MISSING_WARN_PERCENT" validate:"gte=0,lte=100"`
	OutlierIQRFactor     float64 `yaml:"outlier_iqr_factor" envconfig:"OUTLIER_IQR_FACTOR" validate:"gt=0"`
	MaxCategoricalSample int     `yaml:"max_categorical_sample" envconfig:"MAX_CATEGORICAL_SAMPLE" validate:"gte=1"`
	MaxOutlierSample     int     `yaml:"max_outlier_sample" envconfig:"MAX_OUTLIER_SAMPLE" validate:"gte=1"`

	// KeyFields is the subset used for key-duplicate detection.
	KeyFields []string `yaml:"key_fields" envconfig:"KEY_FIELDS"`
}

// CacheConfig bounds the snapshot cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gt=0"`
	MaxEntries int           `yaml:"max_entries" envconfig:"MAX_ENTRIES" validate:"gte=1"`
}

// PathsConfig contains file system paths.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
}

// Load builds the configuration in increasing order of precedence: built-in
// defaults, then the optional YAML file, then environment variables. A key
// set both in the file and in the environment resolves to the environment
// value. The result is validated before use.
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := overlayFromFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	// Environment variables are applied last so they win over file values.
	// Struct tags carry no envconfig defaults: envconfig would re-apply them
	// over the file overlay for every variable left unset.
	if err := envconfig.Process("EPI", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyDefaults fills slice defaults envconfig cannot express in tags.
func (c *Config) applyDefaults() {
	if len(c.Data.EssentialColumns) == 0 {
		c.Data.EssentialColumns = append([]string(nil), DefaultEssentialColumns...)
	}
	if len(c.Data.UsefulColumns) == 0 {
		c.Data.UsefulColumns = append([]string(nil), DefaultUsefulColumns...)
	}
	if len(c.Validation.KeyFields) == 0 {
		c.Validation.KeyFields = append([]string(nil), DefaultDuplicateKeyFields...)
	}
}

// Default returns the built-in configuration without touching the
// environment. It is the lowest-precedence layer of Load and is also used
// directly by tests and embedded callers.
func Default() *Config {
	cfg := &Config{
		Data: DataConfig{
			SourcePath: "data/raw/srag_data.csv",
			ChunkSize:  10000,
			MaxChunks:  500,
		},
		Metrics: MetricsConfig{
			CaseTrendDays:         30,
			MortalityDays:         90,
			ICUDays:               30,
			VaccinationDays:       90,
			HistoricalAnchorYears: 3,
		},
		Classify: ClassifyConfig{
			YoungAgeThreshold:  2,
			ElderAgeThreshold:  60,
			SymptomModerateMin: 3,
			SymptomSevereMin:   5,
		},
		Validation: ValidationConfig{
			MissingWarnPercent:   50,
			OutlierIQRFactor:     1.5,
			MaxCategoricalSample: 10,
			MaxOutlierSample:     5,
		},
		Cache: CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 16,
		},
		Paths: PathsConfig{
			DataDir:    "data",
			ReportsDir: "data/reports",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func configFilePath() string {
	if path := os.Getenv("EPI_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

func overlayFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
