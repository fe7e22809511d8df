// Package dataset holds the normalized surveillance dataset model shared by
// the loader, derivation, classification, validation and metrics stages.
//
// A Dataset is column-oriented in spirit: the ordered Fields slice is the
// column-presence set, and every Record is a sparse map from Field to Value.
// Optional source columns simply never appear; consumers are expected to
// capability-check with Has before reading a column.
package dataset

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field is a canonical column identifier. Raw fields keep the external
// source naming convention; derived and classification fields use
// lower_snake names appended by the pipeline.
type Field string

// Raw source fields.
const (
	FieldNotificationDate Field = "DT_NOTIFIC"
	FieldState            Field = "SG_UF"
	FieldMunicipality     Field = "ID_MUNICIP"
	FieldSex              Field = "CS_SEXO"
	FieldAge              Field = "NU_IDADE_N"
	FieldICU              Field = "UTI"
	FieldVentSupport      Field = "SUPORT_VEN"
	FieldOutcome          Field = "EVOLUCAO"
	FieldOutcomeDate      Field = "DT_EVOLUCA"
	FieldVaccineCode      Field = "VACINA_COV"
	FieldDose1Date        Field = "DOSE_1_COV"
	FieldDose2Date        Field = "DOSE_2_COV"
	FieldBoosterDate      Field = "DOSE_REF"
	FieldBooster2Date     Field = "DOSE_2REF"
	FieldHospitalized     Field = "HOSPITAL"
	FieldAdmissionDate    Field = "DT_INTERNA"
	FieldFirstSymptomDate Field = "DT_SIN_PRI"
	FieldSymptomWeek      Field = "SEM_PRI"
	FieldNotifWeek        Field = "SEM_NOT"

	FieldFever       Field = "FEBRE"
	FieldCough       Field = "TOSSE"
	FieldDyspnea     Field = "DISPNEIA"
	FieldRespDistr   Field = "DESC_RESP"
	FieldO2Sat       Field = "SATURACAO"
	FieldDiarrhea    Field = "DIARREIA"
	FieldVomit       Field = "VOMITO"
)

// Derived fields appended by internal/derive.
const (
	FieldAgeBracket        Field = "age_bracket"
	FieldOutcomeSimple     Field = "outcome_simple"
	FieldHadDeath          Field = "had_death"
	FieldHadICU            Field = "had_icu"
	FieldWasHospitalized   Field = "hospitalized"
	FieldSevereCase        Field = "severe_case"
	FieldVaccinationStatus Field = "vaccination_status"
	FieldSymptomCount      Field = "symptom_count"
	FieldYear              Field = "year"
	FieldMonth             Field = "month"
	FieldWeekday           Field = "weekday"
	FieldEpiWeek           Field = "epi_week"
	FieldQuarter           Field = "quarter"
	FieldLengthOfStay      Field = "length_of_stay_days"
)

// Classification fields appended by internal/classify.
const (
	FieldAgeRiskGroup    Field = "age_risk_group"
	FieldSymptomSeverity Field = "symptom_severity"
	FieldRiskScore       Field = "risk_score"
	FieldRiskLevel       Field = "risk_level"
	FieldDisposition     Field = "disposition"
)

// SymptomFields is the fixed set of symptom flag columns, in source order.
var SymptomFields = []Field{
	FieldFever, FieldCough, FieldDyspnea, FieldRespDistr,
	FieldO2Sat, FieldDiarrhea, FieldVomit,
}

// DoseDateFields lists the vaccination dose-date columns in tier order:
// first dose, second dose, booster, additional booster.
var DoseDateFields = []Field{
	FieldDose1Date, FieldDose2Date, FieldBoosterDate, FieldBooster2Date,
}

// Kind discriminates the payload carried by a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindNumber
	KindTime
)

// Value is a normalized cell. The zero Value is Missing.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Time time.Time
}

// Missing is the canonical missing value.
var Missing = Value{}

// String wraps a categorical value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Time wraps a date value.
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// IsMissing reports whether the value carries no data.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// Render converts the value back to its canonical text form. Rendering a
// value and normalizing the result must round-trip to the same value.
func (v Value) Render() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindTime:
		return v.Time.Format("2006-01-02")
	default:
		return ""
	}
}

// Record is one normalized notification. A missing key and an explicitly
// Missing value are equivalent.
type Record map[Field]Value

// Get returns the value for field and whether it is present and non-missing.
func (r Record) Get(field Field) (Value, bool) {
	v, ok := r[field]
	if !ok || v.IsMissing() {
		return Missing, false
	}
	return v, true
}

// Set stores a value; storing Missing removes the key.
func (r Record) Set(field Field, v Value) {
	if v.IsMissing() {
		delete(r, field)
		return
	}
	r[field] = v
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset is the normalized, column-variable dataset for one run.
type Dataset struct {
	fields  []Field
	present map[Field]bool
	Records []Record
}

// New creates an empty dataset with the given column-presence set.
func New(fields ...Field) *Dataset {
	ds := &Dataset{present: make(map[Field]bool, len(fields))}
	for _, f := range fields {
		ds.AddField(f)
	}
	return ds
}

// Fields returns the ordered column set.
func (ds *Dataset) Fields() []Field {
	out := make([]Field, len(ds.fields))
	copy(out, ds.fields)
	return out
}

// Has reports whether the column exists in this dataset.
func (ds *Dataset) Has(field Field) bool {
	return ds.present[field]
}

// HasAll reports whether every given column exists.
func (ds *Dataset) HasAll(fields ...Field) bool {
	for _, f := range fields {
		if !ds.present[f] {
			return false
		}
	}
	return true
}

// AddField registers a column. Adding an existing column is a no-op.
func (ds *Dataset) AddField(field Field) {
	if ds.present == nil {
		ds.present = make(map[Field]bool)
	}
	if ds.present[field] {
		return
	}
	ds.present[field] = true
	ds.fields = append(ds.fields, field)
}

// Append adds a record.
func (ds *Dataset) Append(r Record) {
	ds.Records = append(ds.Records, r)
}

// Len returns the number of records.
func (ds *Dataset) Len() int { return len(ds.Records) }

// IsEmpty reports whether the dataset has no records.
func (ds *Dataset) IsEmpty() bool { return len(ds.Records) == 0 }

// Clone returns a deep copy. Metric computations run on clones so that the
// normalized dataset is never mutated after normalization completes.
func (ds *Dataset) Clone() *Dataset {
	out := New(ds.fields...)
	out.Records = make([]Record, len(ds.Records))
	for i, r := range ds.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// MaxTime returns the maximum non-missing time value in the column.
func (ds *Dataset) MaxTime(field Field) (time.Time, bool) {
	var max time.Time
	found := false
	for _, r := range ds.Records {
		v, ok := r.Get(field)
		if !ok || v.Kind != KindTime {
			continue
		}
		if !found || v.Time.After(max) {
			max = v.Time
			found = true
		}
	}
	return max, found
}

// Column returns every value of the column, missing entries included, in
// record order.
func (ds *Dataset) Column(field Field) []Value {
	out := make([]Value, len(ds.Records))
	for i, r := range ds.Records {
		out[i] = r[field]
	}
	return out
}

// RowKey renders the record's values over the given fields into a stable
// composite key, used for duplicate detection.
func (r Record) RowKey(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = r[f].Render()
	}
	return strings.Join(parts, "\x1f")
}

// SortedFields returns the column set in lexical order, for deterministic
// report output.
func (ds *Dataset) SortedFields() []Field {
	out := ds.Fields()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
