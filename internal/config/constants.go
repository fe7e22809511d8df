package config

import "time"

// Application constants for the EpiPulse pipeline.
const (
	AppName    = "EpiPulse"
	AppVersion = "1.0.0"

	// Cache settings
	DefaultSnapshotTTL = 1 * time.Hour

	// Ingestion settings
	DefaultChunkSize = 10000
	DefaultMaxChunks = 500
)

// DelimiterCandidates are the separators probed against the header line, in
// preference order on ties.
var DelimiterCandidates = []rune{';', ',', '\t', '|'}

// DefaultEssentialColumns is the fixed essential column list for the
// surveillance source. The loader tolerates individually missing entries;
// only the notification date is mandatory.
var DefaultEssentialColumns = []string{
	"DT_NOTIFIC", // notification date
	"SG_UF",      // state
	"ID_MUNICIP", // municipality
	"CS_SEXO",    // sex
	"NU_IDADE_N", // age
	"UTI",        // ICU admission
	"SUPORT_VEN", // ventilatory support
	"EVOLUCAO",   // case outcome
	"DT_EVOLUCA", // outcome date
	"VACINA_COV", // vaccination code
	"DOSE_1_COV", // first dose date
	"DOSE_2_COV", // second dose date
	"DOSE_REF",   // booster date
	"DOSE_2REF",  // additional booster date
	"FEBRE",      // symptom: fever
	"TOSSE",      // symptom: cough
	"DISPNEIA",   // symptom: dyspnea
	"DESC_RESP",  // respiratory distress
	"SATURACAO",  // O2 saturation
	"DIARREIA",   // symptom: diarrhea
	"VOMITO",     // symptom: vomiting
}

// DefaultUsefulColumns are loaded when present but never required.
var DefaultUsefulColumns = []string{
	"DT_SIN_PRI", "SEM_PRI", "SEM_NOT", "DT_INTERNA", "HOSPITAL",
	"CLASSI_FIN", "CRITERIO", "PNEUMONIA", "PUERPERA", "CARDIOPATI",
	"HEMATOLOGI", "SIND_DOWN", "HEPATICA", "ASMA", "DIABETES",
	"NEUROLOGIC", "PNEUMOPATI", "IMUNODEPRE", "RENAL", "OBESIDADE",
}

// DefaultDuplicateKeyFields is the key subset for key-duplicate detection.
var DefaultDuplicateKeyFields = []string{
	"DT_NOTIFIC", "SG_UF", "NU_IDADE_N", "CS_SEXO",
}

// ComorbidityColumns are the optional comorbidity flags consulted by the
// composite risk score.
var ComorbidityColumns = []string{
	"CARDIOPATI", "HEMATOLOGI", "SIND_DOWN", "HEPATICA", "ASMA",
	"DIABETES", "NEUROLOGIC", "PNEUMOPATI", "IMUNODEPRE", "RENAL",
	"OBESIDADE",
}
