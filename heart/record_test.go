package heart

import (
	"testing"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func TestRiskTierBoundaries(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0, RiskLow},
		{0.2999, RiskLow},
		{0.3, RiskModerate},
		{0.6999, RiskModerate},
		{0.7, RiskHigh},
		{1, RiskHigh},
	}
	for _, tt := range tests {
		if got := RiskTier(tt.p); got != tt.want {
			t.Errorf("RiskTier(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestMessage(t *testing.T) {
	if got := Message(1, 0.7321); got != "Heart disease prediction: Positive with 73.2% probability" {
		t.Errorf("Message = %q", got)
	}
	if got := Message(0, 0.05); got != "Heart disease prediction: Negative with 5.0% probability" {
		t.Errorf("Message = %q", got)
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Record)
		wantField string
	}{
		{"valid", func(*Record) {}, ""},
		{"age too low", func(r *Record) { r.Age = 0 }, ColAge},
		{"chol too high", func(r *Record) { r.Chol = 1200 }, ColChol},
		{"ca out of range", func(r *Record) { r.CA = 4 }, ColCA},
		{"oldpeak negative ok", func(r *Record) { r.Oldpeak = -2.6 }, ""},
		{"empty sex", func(r *Record) { r.Sex = "" }, ColSex},
		{"blank thal", func(r *Record) { r.Thal = "  " }, ColThal},
		{"unknown category accepted", func(r *Record) { r.Sex = "Other" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ExampleRecord()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.ParamName != tt.wantField {
				t.Errorf("field = %q, want %q", ve.ParamName, tt.wantField)
			}
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		col, in, want string
	}{
		{ColCP, "typical angina", "typical"},
		{ColCP, "Atypical Angina", "atypical"},
		{ColFbs, "TRUE", "True"},
		{ColFbs, "False", "False"},
		{ColExang, "FALSE", "No"},
		{ColExang, "Yes", "Yes"},
		{ColRestecg, "lv hypertrophy", "hypertrophy"},
		{ColRestecg, "st-t abnormality", "stt"},
		{ColThal, "reversable defect", "reversable"},
		{ColThal, "fixed defect", "fixed"},
		{ColSex, "male", "Male"},
		{ColSex, "Other", "Other"},
		{ColSlope, Missing, Missing},
		{ColAge, "63", "63"},
	}
	for _, tt := range tests {
		if got := Canonicalize(tt.col, tt.in); got != tt.want {
			t.Errorf("Canonicalize(%s, %q) = %q, want %q", tt.col, tt.in, got, tt.want)
		}
	}
}

func TestRecordFrame(t *testing.T) {
	f := ExampleRecord().Frame()
	if f.NRows() != 1 || f.NCols() != len(FeatureNames) {
		t.Fatalf("shape = (%d, %d)", f.NRows(), f.NCols())
	}
	for i, c := range f.Columns() {
		if c != FeatureNames[i] {
			t.Errorf("column %d = %q, want %q", i, c, FeatureNames[i])
		}
	}
	if f.Get(0, ColOldpeak) != "1.2" || f.Get(0, ColThalch) != "260" {
		t.Errorf("unexpected cells: %v", f.Row(0))
	}
}
