package svm

import (
	"bytes"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// blobs returns two well separated groups of n points each, labelled 0 and 1.
func blobs(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(2*n, 2, nil)
	y := mat.NewDense(2*n, 1, nil)
	for i := 0; i < n; i++ {
		jx := float64(i%5) * 0.1
		jy := float64(i%7) * 0.1
		X.Set(i, 0, -2+jx)
		X.Set(i, 1, -2+jy)
		X.Set(n+i, 0, 2-jx)
		X.Set(n+i, 1, 2-jy)
		y.Set(n+i, 0, 1)
	}
	return X, y
}

// xor returns four clusters whose label is the XOR of the quadrant signs.
func xor() (*mat.Dense, *mat.Dense) {
	centers := [][2]float64{{-1, -1}, {1, 1}, {-1, 1}, {1, -1}}
	X := mat.NewDense(40, 2, nil)
	y := mat.NewDense(40, 1, nil)
	for c, ctr := range centers {
		for i := 0; i < 10; i++ {
			r := c*10 + i
			X.Set(r, 0, ctr[0]+float64(i%3-1)*0.1)
			X.Set(r, 1, ctr[1]+float64(i%4-1)*0.1)
			if c >= 2 {
				y.Set(r, 0, 1)
			}
		}
	}
	return X, y
}

func TestSVC_SeparableBlobs(t *testing.T) {
	X, y := blobs(20)
	svc := NewSVC(WithProbability(true), WithRandomState(42))
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if acc := svc.Score(X, y); acc != 1 {
		t.Errorf("training accuracy = %v, want 1", acc)
	}
	if svc.NSupport() == 0 || svc.NSupport() == 40 {
		t.Errorf("unexpected support vector count %d", svc.NSupport())
	}

	proba, err := svc.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		p0, p1 := proba.At(i, 0), proba.At(i, 1)
		if math.Abs(p0+p1-1) > 1e-12 || p1 < 0 || p1 > 1 {
			t.Fatalf("row %d: invalid probabilities %v %v", i, p0, p1)
		}
		if want := y.At(i, 0); (p1 > 0.5) != (want == 1) {
			t.Errorf("row %d: P(1)=%v for label %v", i, p1, want)
		}
	}
}

func TestSVC_RBFSolvesXOR(t *testing.T) {
	X, y := xor()
	svc := NewSVC(WithC(10))
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if acc := svc.Score(X, y); acc != 1 {
		t.Errorf("XOR accuracy = %v, want 1", acc)
	}

	linear := NewSVC(WithKernel("linear"))
	if err := linear.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if acc := linear.Score(X, y); acc > 0.8 {
		t.Errorf("linear kernel should not separate XOR, got %v", acc)
	}
}

func TestSVC_PredictMatchesDecisionSign(t *testing.T) {
	X, y := blobs(15)
	svc := NewSVC()
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	dec, err := svc.DecisionFunction(X)
	if err != nil {
		t.Fatal(err)
	}
	pred, _ := svc.Predict(X)
	for i := 0; i < dec.Len(); i++ {
		want := 0.0
		if dec.AtVec(i) > 0 {
			want = 1
		}
		if pred.At(i, 0) != want {
			t.Errorf("row %d: decision %v but predicted %v", i, dec.AtVec(i), pred.At(i, 0))
		}
	}
}

func TestSVC_GammaScale(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{0, 0, 0, 2, 2, 0, 2, 2})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	svc := NewSVC()
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	// every element is 0 or 2, population variance 1
	if math.Abs(svc.Gamma()-0.5) > 1e-12 {
		t.Errorf("gamma = %v, want 0.5", svc.Gamma())
	}
}

func TestSVC_ProbabilityDeterministic(t *testing.T) {
	X, y := xor()
	fit := func() mat.Matrix {
		svc := NewSVC(WithProbability(true), WithRandomState(42))
		if err := svc.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		p, err := svc.PredictProba(X)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	if !mat.Equal(fit(), fit()) {
		t.Error("probabilities differ between identical fits")
	}
}

func TestSVC_Errors(t *testing.T) {
	X, y := blobs(10)

	svc := NewSVC()
	var nf *errors.NotFittedError
	if _, err := svc.Predict(X); !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	var me *errors.ModelError
	if _, err := svc.PredictProba(X); !errors.As(err, &me) {
		t.Errorf("expected ModelError without probability, got %v", err)
	}

	three := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		three.Set(i, 0, float64(i%3))
	}
	var ve *errors.ValueError
	if err := NewSVC().Fit(X, three); !errors.As(err, &ve) {
		t.Errorf("expected ValueError for three classes, got %v", err)
	}

	var valErr *errors.ValidationError
	if err := NewSVC(WithC(0)).Fit(X, y); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for C=0, got %v", err)
	}
	if err := NewSVC(WithKernel("poly")).Fit(X, y); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for poly kernel, got %v", err)
	}
}

func TestSVC_Params(t *testing.T) {
	svc := NewSVC()
	err := svc.SetParams(map[string]interface{}{
		"C":            10,
		"gamma":        0.25,
		"probability":  true,
		"random_state": 42,
	})
	if err != nil {
		t.Fatal(err)
	}
	p := svc.GetParams()
	if p["C"] != 10.0 || p["gamma"] != 0.25 || p["probability"] != true || p["random_state"] != int64(42) {
		t.Errorf("GetParams = %v", p)
	}
	if err := svc.SetParams(map[string]interface{}{"gamma": "auto"}); err != nil {
		t.Fatal(err)
	}
	if svc.GetParams()["gamma"] != "auto" {
		t.Errorf("gamma mode not applied: %v", svc.GetParams()["gamma"])
	}
	var valErr *errors.ValidationError
	if err := svc.SetParams(map[string]interface{}{"degree": 3}); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for unknown key, got %v", err)
	}
}

func TestSVC_GobRoundTrip(t *testing.T) {
	X, y := xor()
	svc := NewSVC(WithProbability(true), WithRandomState(1))
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := model.SaveModelToWriter(svc, &buf); err != nil {
		t.Fatal(err)
	}
	loaded := &SVC{}
	if err := model.LoadModelFromReader(loaded, &buf); err != nil {
		t.Fatal(err)
	}
	want, _ := svc.PredictProba(X)
	got, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(want, got, 1e-15) {
		t.Error("decoded model predicts differently")
	}
}
