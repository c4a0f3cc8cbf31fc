package neighbors

import (
	"bytes"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

func line() (*mat.Dense, *mat.Dense) {
	// 0 0 0 1 1 1 at x = 0..5
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

func TestKNN_PredictProba(t *testing.T) {
	X, y := line()
	knn := NewKNeighborsClassifier(WithNNeighbors(3))
	if err := knn.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		x    float64
		p1   float64
		want float64
	}{
		{"deep in class 0", 0.2, 0, 0},
		{"boundary left", 2.4, 1.0 / 3, 0},
		{"boundary right", 2.6, 2.0 / 3, 1},
		{"deep in class 1", 4.8, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := mat.NewDense(1, 1, []float64{tt.x})
			proba, err := knn.PredictProba(q)
			if err != nil {
				t.Fatal(err)
			}
			if got := proba.At(0, 1); got != tt.p1 {
				t.Errorf("P(1) = %v, want %v", got, tt.p1)
			}
			pred, _ := knn.Predict(q)
			if pred.At(0, 0) != tt.want {
				t.Errorf("Predict = %v, want %v", pred.At(0, 0), tt.want)
			}
		})
	}
}

func TestKNN_Ties(t *testing.T) {
	X, y := line()
	knn := NewKNeighborsClassifier(WithNNeighbors(2))
	if err := knn.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	// x=2.5 is equidistant from 2 and 3: one vote each, P(1) = 0.5 predicts 1
	q := mat.NewDense(1, 1, []float64{2.5})
	pred, err := knn.Predict(q)
	if err != nil {
		t.Fatal(err)
	}
	proba, _ := knn.PredictProba(q)
	if proba.At(0, 1) != 0.5 || pred.At(0, 0) != 1 {
		t.Errorf("P(1) = %v, Predict = %v; want 0.5 and 1", proba.At(0, 1), pred.At(0, 0))
	}

	// x=1.5 with k=2: neighbours 1 and 2 at equal distance, both class 0
	proba, _ = knn.PredictProba(mat.NewDense(1, 1, []float64{1.5}))
	if proba.At(0, 0) != 1 {
		t.Errorf("P(0) = %v, want 1", proba.At(0, 0))
	}
}

func TestKNN_DistanceWeights(t *testing.T) {
	X, y := line()
	knn := NewKNeighborsClassifier(WithNNeighbors(3), WithWeights("distance"))
	if err := knn.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	proba, err := knn.PredictProba(mat.NewDense(1, 1, []float64{3}))
	if err != nil {
		t.Fatal(err)
	}
	if proba.At(0, 1) != 1 {
		t.Errorf("exact match should take all weight, got P(1)=%v", proba.At(0, 1))
	}
}

func TestKNN_Errors(t *testing.T) {
	X, y := line()
	var nf *errors.NotFittedError
	if _, err := NewKNeighborsClassifier().Predict(X); !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}
	var ve *errors.ValueError
	if err := NewKNeighborsClassifier(WithNNeighbors(7)).Fit(X, y); !errors.As(err, &ve) {
		t.Errorf("expected ValueError for k > n, got %v", err)
	}
	var valErr *errors.ValidationError
	if err := NewKNeighborsClassifier(WithWeights("gaussian")).Fit(X, y); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	knn := NewKNeighborsClassifier(WithNNeighbors(3))
	if err := knn.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	var de *errors.DimensionError
	if _, err := knn.Predict(mat.NewDense(1, 2, nil)); !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestKNN_ParallelMatchesSequential(t *testing.T) {
	n := 100
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i%10))
		X.Set(i, 1, float64(i/10))
		if (i%10)+(i/10) > 9 {
			y.Set(i, 0, 1)
		}
	}
	seq := NewKNeighborsClassifier(WithNNeighbors(7), WithNJobs(1))
	par := NewKNeighborsClassifier(WithNNeighbors(7), WithNJobs(8))
	for _, k := range []*KNeighborsClassifier{seq, par} {
		if err := k.Fit(X, y); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := seq.PredictProba(X)
	b, _ := par.PredictProba(X)
	if !mat.Equal(a, b) {
		t.Error("parallel and sequential predictions differ")
	}
}

func TestKNN_ParamsAndGob(t *testing.T) {
	X, y := line()
	knn := NewKNeighborsClassifier()
	if err := knn.SetParams(map[string]interface{}{"n_neighbors": 3}); err != nil {
		t.Fatal(err)
	}
	if knn.GetParams()["n_neighbors"] != 3 {
		t.Errorf("n_neighbors not applied")
	}
	if err := knn.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(knn, &buf); err != nil {
		t.Fatal(err)
	}
	loaded := &KNeighborsClassifier{}
	if err := model.LoadModelFromReader(loaded, &buf); err != nil {
		t.Fatal(err)
	}
	want, _ := knn.PredictProba(X)
	got, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(want, got) {
		t.Error("decoded model predicts differently")
	}
}
