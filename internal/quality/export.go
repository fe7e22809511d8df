package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const validatorVersion = "1.0.0"

// exportDocument is the on-disk shape of a validation report.
type exportDocument struct {
	Metadata    exportMetadata `json:"metadata"`
	Summary     exportSummary  `json:"summary"`
	Detailed    *Report        `json:"detailed_results"`
	ActiveRules []activeRule   `json:"active_rules"`
	Thresholds  exportConfig   `json:"active_configuration"`
}

type exportMetadata struct {
	ReportID         string    `json:"report_id"`
	GeneratedAt      time.Time `json:"generated_at"`
	ValidatorVersion string    `json:"validator_version"`
	RecordsValidated int       `json:"records_validated"`
}

type exportSummary struct {
	Passed       bool    `json:"passed"`
	Score        float64 `json:"score"`
	ErrorCount   int     `json:"error_count"`
	WarningCount int     `json:"warning_count"`
}

type activeRule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type exportConfig struct {
	MissingWarnPercent   float64  `json:"missing_warn_percent"`
	OutlierIQRFactor     float64  `json:"outlier_iqr_factor"`
	MaxCategoricalSample int      `json:"max_categorical_sample"`
	MaxOutlierSample     int      `json:"max_outlier_sample"`
	KeyFields            []string `json:"key_fields"`
}

// Export writes the report as a JSON document. An empty path auto-names the
// file under reportsDir as validation_report_YYYYMMDD_HHMMSS.json. The
// written path is returned.
func (v *Validator) Export(report *Report, reportsDir, path string) (string, error) {
	if path == "" {
		path = filepath.Join(reportsDir,
			fmt.Sprintf("validation_report_%s.json", time.Now().Format("20060102_150405")))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	doc := exportDocument{
		Metadata: exportMetadata{
			ReportID:         uuid.New().String(),
			GeneratedAt:      time.Now().UTC(),
			ValidatorVersion: validatorVersion,
			RecordsValidated: report.TotalRecords,
		},
		Summary: exportSummary{
			Passed:       report.Passed,
			Score:        report.Score,
			ErrorCount:   report.ErrorCount(),
			WarningCount: report.WarningCount(),
		},
		Detailed:    report,
		ActiveRules: activeRules(v.rules),
		Thresholds: exportConfig{
			MissingWarnPercent:   v.cfg.MissingWarnPercent,
			OutlierIQRFactor:     v.cfg.OutlierIQRFactor,
			MaxCategoricalSample: v.cfg.MaxCategoricalSample,
			MaxOutlierSample:     v.cfg.MaxOutlierSample,
			KeyFields:            v.cfg.KeyFields,
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal validation report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write validation report: %w", err)
	}

	v.logger.Info("validation report exported", "path", path, "score", report.Score)
	return path, nil
}

func activeRules(rules []BusinessRule) []activeRule {
	out := make([]activeRule, len(rules))
	for i, r := range rules {
		out[i] = activeRule{Name: r.Name, Description: r.Description}
	}
	return out
}
