package tree

import (
	"bytes"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func TestDecisionTreeRegressor_StepFunction(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 11, 12})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 5, 5, 5})

	r := NewDecisionTreeRegressor(1, 2, 1)
	if err := r.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if r.NLeaves() != 2 {
		t.Fatalf("NLeaves = %d, want 2", r.NLeaves())
	}
	pred, err := r.Predict(mat.NewDense(2, 1, []float64{0, 20}))
	if err != nil {
		t.Fatal(err)
	}
	if pred.At(0, 0) != 0 || pred.At(1, 0) != 5 {
		t.Errorf("predictions = %v, %v; want 0, 5", pred.At(0, 0), pred.At(1, 0))
	}
}

func TestDecisionTreeRegressor_SetLeafValue(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 10, 11})
	y := mat.NewDense(4, 1, []float64{1, 1, 3, 3})
	r := NewDecisionTreeRegressor(3, 2, 1)
	if err := r.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	leaf := r.Apply([]float64{1.5})
	r.SetLeafValue(leaf, -7)
	if got := r.PredictRow([]float64{1}); got != -7 {
		t.Errorf("PredictRow after override = %v, want -7", got)
	}
	if got := r.PredictRow([]float64{10}); got != 3 {
		t.Errorf("other leaf changed: %v", got)
	}
}

func TestDecisionTreeRegressor_NotFitted(t *testing.T) {
	r := NewDecisionTreeRegressor(3, 2, 1)
	var nf *errors.NotFittedError
	if _, err := r.Predict(mat.NewDense(1, 1, []float64{1})); !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
}

func TestDecisionTreeClassifier_FitIndicesBootstrap(t *testing.T) {
	cols := [][]float64{{0, 1, 2, 3, 4, 5}}
	yIdx := []int{0, 0, 0, 1, 1, 1}
	classes := []float64{0, 1}

	// the bootstrap sample never contains class 1 but the layout keeps two columns
	dt := NewDecisionTreeClassifier()
	if err := dt.FitIndices(cols, yIdx, classes, []int{0, 1, 1, 2}); err != nil {
		t.Fatal(err)
	}
	proba, err := dt.PredictProba(mat.NewDense(1, 1, []float64{5}))
	if err != nil {
		t.Fatal(err)
	}
	if _, c := proba.Dims(); c != 2 {
		t.Fatalf("expected 2 probability columns, got %d", c)
	}
	if proba.At(0, 0) != 1 || proba.At(0, 1) != 0 {
		t.Errorf("proba = %v, want [1 0]", mat.Row(nil, 0, proba))
	}
}

func TestDecisionTreeClassifier_MaxFeaturesDeterministic(t *testing.T) {
	X := mat.NewDense(12, 4, nil)
	y := mat.NewDense(12, 1, nil)
	for i := 0; i < 12; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64((i*(j+3))%7))
		}
		y.Set(i, 0, float64(i%2))
	}

	fit := func() []float64 {
		dt := NewDecisionTreeClassifier(WithMaxFeatures("sqrt"), WithRandomState(42))
		if err := dt.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		p, err := dt.PredictProba(X)
		if err != nil {
			t.Fatal(err)
		}
		return mat.Col(nil, 1, p)
	}
	a, b := fit(), fit()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed gave different trees at row %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestDecisionTreeClassifier_InvalidParams(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})
	tests := []struct {
		name string
		opt  DecisionTreeOption
	}{
		{"criterion", WithCriterion("mae")},
		{"min_samples_split", WithMinSamplesSplit(1)},
		{"min_samples_leaf", WithMinSamplesLeaf(0)},
		{"max_features", WithMaxFeatures("half")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *errors.ValidationError
			if err := NewDecisionTreeClassifier(tt.opt).Fit(X, y); !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestDecisionTreeClassifier_MaxDepthNone(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	if err := dt.SetParams(map[string]interface{}{"max_depth": nil}); err != nil {
		t.Fatal(err)
	}
	if dt.maxDepth != 0 || dt.GetParams()["max_depth"] != nil {
		t.Errorf("max_depth None should map to unlimited, got %d", dt.maxDepth)
	}
}

func TestDecisionTreeClassifier_GobRoundTrip(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{0, 0, 0, 1, 1, 0, 2, 2, 2, 3, 3, 2})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	dt := NewDecisionTreeClassifier(WithMaxDepth(3), WithCriterion("entropy"))
	if err := dt.Fit(X, y); err != nil {
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

	if restored.criterion != "entropy" || restored.maxDepth != 3 {
		t.Errorf("hyperparameters lost: %s", restored)
	}
	if math.Abs(restored.Score(X, y)-1.0) > 0 {
		t.Errorf("restored tree score = %v", restored.Score(X, y))
	}
	if restored.GetNLeaves() != dt.GetNLeaves() || restored.GetDepth() != dt.GetDepth() {
		t.Errorf("restored shape differs")
	}
}
