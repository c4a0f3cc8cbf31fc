// Package heart defines the clinical record schema and the batch stages that
// turn the raw UCI table into model-ready train/test tables: cleaning,
// canonicalization and the stratified split.
package heart

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Column names of the training schema.
const (
	ColAge      = "age"
	ColSex      = "sex"
	ColCP       = "cp"
	ColTrestbps = "trestbps"
	ColChol     = "chol"
	ColFbs      = "fbs"
	ColRestecg  = "restecg"
	ColThalch   = "thalch"
	ColExang    = "exang"
	ColOldpeak  = "oldpeak"
	ColSlope    = "slope"
	ColCA       = "ca"
	ColThal     = "thal"

	ColTarget   = "target"
	ColSeverity = "num"
	ColID       = "id"
	ColDataset  = "dataset"

	// Missing is the sentinel written into empty categorical cells.
	Missing = "missing"
)

// FeatureNames is the fixed, ordered list of the 13 raw input features.
var FeatureNames = []string{
	ColAge, ColSex, ColCP, ColTrestbps, ColChol, ColFbs, ColRestecg,
	ColThalch, ColExang, ColOldpeak, ColSlope, ColCA, ColThal,
}

// CategoricalColumns are one-hot encoded by the preprocessing stage.
var CategoricalColumns = []string{ColCP, ColSex, ColFbs, ColRestecg, ColExang, ColSlope, ColThal}

// NumericColumns are standardized by the preprocessing stage.
var NumericColumns = []string{ColAge, ColTrestbps, ColChol, ColThalch, ColOldpeak, ColCA}

// Record is one patient observation as accepted by the prediction API.
type Record struct {
	Age      int     `json:"age"`
	Sex      string  `json:"sex"`
	CP       string  `json:"cp"`
	Trestbps int     `json:"trestbps"`
	Chol     int     `json:"chol"`
	Fbs      string  `json:"fbs"`
	Restecg  string  `json:"restecg"`
	Thalch   int     `json:"thalch"`
	Exang    string  `json:"exang"`
	Oldpeak  float64 `json:"oldpeak"`
	Slope    string  `json:"slope"`
	CA       int     `json:"ca"`
	Thal     string  `json:"thal"`
}

// ExampleRecord is the reference patient used by the predict command and the
// end-to-end tests.
func ExampleRecord() Record {
	return Record{
		Age: 55, Sex: "Male", CP: "typical", Trestbps: 140, Chol: 350,
		Fbs: "False", Restecg: "normal", Thalch: 260, Exang: "No",
		Oldpeak: 1.2, Slope: "upsloping", CA: 0, Thal: "normal",
	}
}

type numericRange struct {
	field  string
	value  float64
	lo, hi float64
}

// Validate checks numeric domains and that categorical fields are present.
// Unknown categorical values are accepted; they encode to all zeros.
func (r Record) Validate() error {
	ranges := []numericRange{
		{ColAge, float64(r.Age), 1, 120},
		{ColTrestbps, float64(r.Trestbps), 0, 300},
		{ColChol, float64(r.Chol), 0, 1000},
		{ColThalch, float64(r.Thalch), 0, 300},
		{ColOldpeak, r.Oldpeak, -10, 10},
		{ColCA, float64(r.CA), 0, 3},
	}
	for _, nr := range ranges {
		if math.IsNaN(nr.value) || math.IsInf(nr.value, 0) {
			return errors.NewValidationError(nr.field, "must be a finite number", nr.value)
		}
		if nr.value < nr.lo || nr.value > nr.hi {
			return errors.NewValidationError(nr.field,
				fmt.Sprintf("must be between %s and %s", dataset.FormatFloat(nr.lo), dataset.FormatFloat(nr.hi)), nr.value)
		}
	}

	cats := []struct{ field, value string }{
		{ColSex, r.Sex}, {ColCP, r.CP}, {ColFbs, r.Fbs}, {ColRestecg, r.Restecg},
		{ColExang, r.Exang}, {ColSlope, r.Slope}, {ColThal, r.Thal},
	}
	for _, c := range cats {
		if strings.TrimSpace(c.value) == "" {
			return errors.NewValidationError(c.field, "must be a non-empty string", nil)
		}
	}
	return nil
}

// Canonical returns a copy with categorical spellings mapped onto the API
// vocabulary.
func (r Record) Canonical() Record {
	r.Sex = Canonicalize(ColSex, r.Sex)
	r.CP = Canonicalize(ColCP, r.CP)
	r.Fbs = Canonicalize(ColFbs, r.Fbs)
	r.Restecg = Canonicalize(ColRestecg, r.Restecg)
	r.Exang = Canonicalize(ColExang, r.Exang)
	r.Slope = Canonicalize(ColSlope, r.Slope)
	r.Thal = Canonicalize(ColThal, r.Thal)
	return r
}

// Cells renders the record in FeatureNames order.
func (r Record) Cells() []string {
	return []string{
		strconv.Itoa(r.Age), r.Sex, r.CP, strconv.Itoa(r.Trestbps), strconv.Itoa(r.Chol),
		r.Fbs, r.Restecg, strconv.Itoa(r.Thalch), r.Exang, dataset.FormatFloat(r.Oldpeak),
		r.Slope, strconv.Itoa(r.CA), r.Thal,
	}
}

// Frame returns a single-row table in the training schema.
func (r Record) Frame() *dataset.Frame {
	f := dataset.New("request", FeatureNames...)
	_ = f.AppendRow(r.Cells()...)
	return f
}

// Risk tiers.
const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
)

// RiskTier buckets a positive-class probability. Each band includes its
// lower bound.
func RiskTier(p float64) string {
	switch {
	case p < 0.3:
		return RiskLow
	case p < 0.7:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// Message renders the human-readable prediction summary.
func Message(label int, p float64) string {
	result := "Negative"
	if label == 1 {
		result = "Positive"
	}
	return fmt.Sprintf("Heart disease prediction: %s with %.1f%% probability", result, p*100)
}
