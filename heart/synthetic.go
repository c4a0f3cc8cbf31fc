package heart

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
)

// SyntheticCohort generates n clean records whose features shift with the
// label the way the UCI cohort does (older, more asymptomatic chest pain,
// lower max heart rate, more exercise angina for positives). It is
// deterministic for a seed and is used by tests and local smoke runs.
func SyntheticCohort(n int, seed uint64) (*dataset.Frame, *mat.VecDense) {
	r := rand.New(rand.NewPCG(seed, seed))
	f := dataset.New("synthetic", FeatureNames...)
	y := mat.NewVecDense(n, nil)

	pick := func(p float64, yes, no string) string {
		if r.Float64() < p {
			return yes
		}
		return no
	}
	choose := func(weights []float64, values []string) string {
		u := r.Float64()
		for i, w := range weights {
			if u < w {
				return values[i]
			}
			u -= w
		}
		return values[len(values)-1]
	}
	clamp := func(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }

	for i := 0; i < n; i++ {
		label := 0.0
		if r.Float64() < 0.45 {
			label = 1
		}
		pos := label == 1
		y.SetVec(i, label)

		rec := Record{
			Age:      int(clamp(math.Round(50+8*label+r.NormFloat64()*7), 29, 77)),
			Sex:      pick(0.6+0.25*label, "Male", "Female"),
			Trestbps: int(clamp(math.Round(125+8*label+r.NormFloat64()*15), 90, 200)),
			Chol:     int(clamp(math.Round(225+15*label+r.NormFloat64()*40), 120, 560)),
			Fbs:      pick(0.12+0.08*label, "True", "False"),
			Restecg:  choose([]float64{0.6, 0.2}, []string{"normal", "stt", "hypertrophy"}),
			Thalch:   int(clamp(math.Round(158-22*label+r.NormFloat64()*18), 70, 202)),
			Exang:    pick(0.12+0.45*label, "Yes", "No"),
			Oldpeak:  math.Round(clamp(0.5+1.1*label+r.NormFloat64()*0.8, 0, 6.2)*10) / 10,
		}
		if pos {
			rec.CP = choose([]float64{0.7, 0.1, 0.15}, []string{"asymptomatic", "atypical", "non-anginal", "typical"})
			rec.Slope = choose([]float64{0.65, 0.25}, []string{"flat", "upsloping", "downsloping"})
			rec.CA = int(clamp(math.Floor(r.Float64()*4), 0, 3))
			rec.Thal = choose([]float64{0.6, 0.15}, []string{"reversable", "fixed", "normal"})
		} else {
			rec.CP = choose([]float64{0.25, 0.3, 0.35}, []string{"asymptomatic", "atypical", "non-anginal", "typical"})
			rec.Slope = choose([]float64{0.65, 0.3}, []string{"upsloping", "flat", "downsloping"})
			rec.CA = vesselCount(r, 0.8)
			rec.Thal = choose([]float64{0.75, 0.1}, []string{"normal", "fixed", "reversable"})
		}
		_ = f.AppendRow(rec.Cells()...)
	}
	return f, y
}

// vesselCount returns 0 with probability p0, otherwise 1..3 uniformly.
func vesselCount(r *rand.Rand, p0 float64) int {
	if r.Float64() < p0 {
		return 0
	}
	return 1 + r.IntN(3)
}
