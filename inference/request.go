package inference

import (
	"math"

	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Request is the JSON body of a prediction call. Pointer fields tell a
// missing field apart from a zero value.
//
// Integer features decode as float64 so that 55.0 is accepted for age;
// Record rejects values with a fractional part.
type Request struct {
	Age      *float64 `json:"age"`
	Sex      *string  `json:"sex"`
	CP       *string  `json:"cp"`
	Trestbps *float64 `json:"trestbps"`
	Chol     *float64 `json:"chol"`
	Fbs      *string  `json:"fbs"`
	Restecg  *string  `json:"restecg"`
	Thalch   *float64 `json:"thalch"`
	Exang    *string  `json:"exang"`
	Oldpeak  *float64 `json:"oldpeak"`
	Slope    *string  `json:"slope"`
	CA       *float64 `json:"ca"`
	Thal     *string  `json:"thal"`
}

// Record checks that every field is present and that integer features are
// whole numbers, and returns the record.
func (r Request) Record() (heart.Record, error) {
	var rec heart.Record
	ints := []struct {
		field string
		src   *float64
		dst   *int
	}{
		{heart.ColAge, r.Age, &rec.Age},
		{heart.ColTrestbps, r.Trestbps, &rec.Trestbps},
		{heart.ColChol, r.Chol, &rec.Chol},
		{heart.ColThalch, r.Thalch, &rec.Thalch},
		{heart.ColCA, r.CA, &rec.CA},
	}
	strs := []struct {
		field string
		src   *string
		dst   *string
	}{
		{heart.ColSex, r.Sex, &rec.Sex},
		{heart.ColCP, r.CP, &rec.CP},
		{heart.ColFbs, r.Fbs, &rec.Fbs},
		{heart.ColRestecg, r.Restecg, &rec.Restecg},
		{heart.ColExang, r.Exang, &rec.Exang},
		{heart.ColSlope, r.Slope, &rec.Slope},
		{heart.ColThal, r.Thal, &rec.Thal},
	}
	// report the first missing field in training column order
	missing := map[string]bool{}
	for _, f := range ints {
		if f.src == nil {
			missing[f.field] = true
		}
	}
	for _, f := range strs {
		if f.src == nil {
			missing[f.field] = true
			continue
		}
		*f.dst = *f.src
	}
	if r.Oldpeak == nil {
		missing[heart.ColOldpeak] = true
	} else {
		rec.Oldpeak = *r.Oldpeak
	}
	for _, name := range heart.FeatureNames {
		if missing[name] {
			return heart.Record{}, errors.NewValidationError(name, "field required", nil)
		}
	}

	for _, f := range ints {
		n, err := wholeNumber(f.field, *f.src)
		if err != nil {
			return heart.Record{}, err
		}
		*f.dst = n
	}
	return rec, nil
}

func wholeNumber(field string, v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, errors.NewValidationError(field, "must be an integer", v)
	}
	return int(v), nil
}

// NewRequest is the inverse of Request.Record.
func NewRequest(rec heart.Record) Request {
	num := func(v int) *float64 {
		f := float64(v)
		return &f
	}
	return Request{
		Age: num(rec.Age), Sex: &rec.Sex, CP: &rec.CP, Trestbps: num(rec.Trestbps), Chol: num(rec.Chol),
		Fbs: &rec.Fbs, Restecg: &rec.Restecg, Thalch: num(rec.Thalch), Exang: &rec.Exang,
		Oldpeak: &rec.Oldpeak, Slope: &rec.Slope, CA: num(rec.CA), Thal: &rec.Thal,
	}
}
