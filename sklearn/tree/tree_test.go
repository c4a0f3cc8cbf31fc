package tree

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/preprocessing"
)

// encodedCohort returns a synthetic cohort in the layout the forest sees:
// one-hot indicators followed by standardized numeric columns.
func encodedCohort(t *testing.T, n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	t.Helper()
	frame, y := heart.SyntheticCohort(n, seed)
	ct := preprocessing.NewColumnTransformer(heart.CategoricalColumns, heart.NumericColumns)
	X, err := ct.FitTransform(frame)
	if err != nil {
		t.Fatal(err)
	}
	return X, y
}

func positiveColumn(t *testing.T, dt *DecisionTreeClassifier, X mat.Matrix) []float64 {
	t.Helper()
	p, err := dt.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	return mat.Col(nil, 1, p)
}

func TestDecisionTreeClassifier_EncodedCohort(t *testing.T) {
	X, y := encodedCohort(t, 160, 5)
	_, nFeatures := X.Dims()

	dt := NewDecisionTreeClassifier()
	if err := dt.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if !dt.IsFitted() || dt.GetDepth() == 0 {
		t.Fatalf("tree not grown: fitted=%v depth=%d", dt.IsFitted(), dt.GetDepth())
	}
	if c := dt.Classes(); len(c) != 2 || c[0] != 0 || c[1] != 1 {
		t.Errorf("classes = %v", c)
	}
	if score := dt.Score(X, y); score < 0.95 {
		t.Errorf("training accuracy = %v, a fully grown tree should fit the cohort", score)
	}

	imp := dt.GetFeatureImportances()
	if len(imp) != nFeatures {
		t.Fatalf("importances for %d features, want %d", len(imp), nFeatures)
	}
	sum := 0.0
	for _, v := range imp {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances sum to %v", sum)
	}

	probas, err := dt.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := dt.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 160; i++ {
		p0, p1 := probas.At(i, 0), probas.At(i, 1)
		if math.Abs(p0+p1-1) > 1e-9 {
			t.Fatalf("row %d: probabilities %v %v", i, p0, p1)
		}
		if (pred.At(i, 0) == 1) != (p1 >= 0.5) {
			t.Errorf("row %d: label %v with P(1)=%v", i, pred.At(i, 0), p1)
		}
	}
}

func TestDecisionTreeClassifier_SqrtFeaturesReproducible(t *testing.T) {
	X, y := encodedCohort(t, 200, 9)
	_, nFeatures := X.Dims()

	if k, _ := resolveMaxFeatures("sqrt", nFeatures); k != int(math.Sqrt(float64(nFeatures))) {
		t.Errorf("sqrt of %d features resolved to %d", nFeatures, k)
	}

	fit := func(seed int64) (*DecisionTreeClassifier, []float64) {
		dt := NewDecisionTreeClassifier(WithMaxFeatures("sqrt"), WithRandomState(seed), WithMaxDepth(6))
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		return dt, positiveColumn(t, dt, X)
	}
	a, pa := fit(42)
	b, pb := fit(42)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("row %d: seed 42 gave %v then %v", i, pa[i], pb[i])
		}
	}
	ia, ib := a.GetFeatureImportances(), b.GetFeatureImportances()
	for j := range ia {
		if ia[j] != ib[j] {
			t.Fatalf("feature %d importance differs: %v vs %v", j, ia[j], ib[j])
		}
	}
	if a.GetDepth() > 6 {
		t.Errorf("depth %d exceeds max_depth 6", a.GetDepth())
	}
}

func TestDecisionTreeClassifier_GrowthLimits(t *testing.T) {
	X, y := encodedCohort(t, 160, 13)

	tests := []struct {
		name      string
		opts      []DecisionTreeOption
		maxDepth  int
		maxLeaves int
	}{
		{"stump", []DecisionTreeOption{WithMaxDepth(1)}, 1, 2},
		{"depth 3", []DecisionTreeOption{WithMaxDepth(3)}, 3, 8},
		{"leaf of 40", []DecisionTreeOption{WithMinSamplesLeaf(40)}, 3, 4},
		{"no split possible", []DecisionTreeOption{WithMinSamplesSplit(161)}, 0, 1},
		{"entropy stump", []DecisionTreeOption{WithCriterion("entropy"), WithMaxDepth(1)}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := NewDecisionTreeClassifier(tt.opts...)
			if err := dt.Fit(X, y); err != nil {
				t.Fatal(err)
			}
			if d := dt.GetDepth(); d > tt.maxDepth {
				t.Errorf("depth = %d, want <= %d", d, tt.maxDepth)
			}
			if n := dt.GetNLeaves(); n > tt.maxLeaves {
				t.Errorf("leaves = %d, want <= %d", n, tt.maxLeaves)
			}
		})
	}
}

func TestDecisionTreeClassifier_EncodedGobRoundTrip(t *testing.T) {
	X, y := encodedCohort(t, 200, 17)
	train := X.Slice(0, 160, 0, X.RawMatrix().Cols)
	test := X.Slice(160, 200, 0, X.RawMatrix().Cols)

	dt := NewDecisionTreeClassifier(WithMaxFeatures("sqrt"), WithRandomState(42), WithMinSamplesLeaf(2))
	if err := dt.Fit(train, mat.VecDenseCopyOf(y.SliceVec(0, 160))); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(dt, &buf); err != nil {
		t.Fatal(err)
	}
	restored := &DecisionTreeClassifier{}
	if err := model.LoadModelFromReader(restored, &buf); err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(restored.GetParams()) != fmt.Sprint(dt.GetParams()) {
		t.Errorf("params = %v, want %v", restored.GetParams(), dt.GetParams())
	}
	want, got := positiveColumn(t, dt, test), positiveColumn(t, restored, test)
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("held-out row %d: restored P(1) %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecisionTreeClassifier_SetParams(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	err := dt.SetParams(map[string]interface{}{
		"max_depth":         5,
		"min_samples_split": 4,
		"min_samples_leaf":  2,
		"max_features":      "sqrt",
		"random_state":      7,
	})
	if err != nil {
		t.Fatal(err)
	}
	params := dt.GetParams()
	if params["max_depth"] != 5 || params["min_samples_split"] != 4 || params["min_samples_leaf"] != 2 ||
		params["max_features"] != "sqrt" || params["random_state"] != int64(7) {
		t.Errorf("params = %v", params)
	}

	if err := dt.SetParams(map[string]interface{}{"n_estimators": 10}); err == nil {
		t.Error("expected an error for a forest-only parameter")
	}
}

func TestDecisionTreeClassifier_NotFitted(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	X := mat.NewDense(1, 3, []float64{1, 0, 0.5})
	var nf *errors.NotFittedError
	if _, err := dt.Predict(X); !errors.As(err, &nf) {
		t.Errorf("Predict: expected NotFittedError, got %v", err)
	}
	if _, err := dt.PredictProba(X); !errors.As(err, &nf) {
		t.Errorf("PredictProba: expected NotFittedError, got %v", err)
	}
}
