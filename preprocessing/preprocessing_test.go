package preprocessing

import (
	"bytes"
	"encoding/gob"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}

	// Population std of {1,2,3,4} is sqrt(1.25); constant column scales by 1.
	if math.Abs(s.Mean[0]-2.5) > 1e-12 || math.Abs(s.Scale[0]-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("column 0 stats = (%v, %v)", s.Mean[0], s.Scale[0])
	}
	if s.Scale[1] != 1 {
		t.Errorf("constant column scale = %v, want 1", s.Scale[1])
	}
	if got := out.At(3, 1); got != 0 {
		t.Errorf("constant column should map to 0, got %v", got)
	}

	back, err := s.InverseTransform(out)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Error("InverseTransform did not recover the input")
	}

	if _, err := s.Transform(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected dimension error")
	}
	if _, err := NewStandardScalerDefault().Transform(X); err == nil {
		t.Error("expected not fitted error")
	}
}

func TestOneHotEncoder(t *testing.T) {
	e := NewOneHotEncoder()
	train := [][]string{{"Male", "typical"}, {"Female", "asymptomatic"}, {"Male", "atypical"}}
	if err := e.Fit(train); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(e.Categories_[1], ","); got != "asymptomatic,atypical,typical" {
		t.Errorf("categories sorted wrongly: %s", got)
	}
	names := e.FeatureNames([]string{"sex", "cp"})
	want := "sex_Female,sex_Male,cp_asymptomatic,cp_atypical,cp_typical"
	if strings.Join(names, ",") != want {
		t.Errorf("FeatureNames = %v", names)
	}

	out, err := e.Transform([][]string{{"Other", "typical"}})
	if err != nil {
		t.Fatalf("unseen value must not error: %v", err)
	}
	wantRow := []float64{0, 0, 0, 0, 1}
	for j, w := range wantRow {
		if out.At(0, j) != w {
			t.Errorf("col %d = %v, want %v", j, out.At(0, j), w)
		}
	}
}

func trainFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	const csv = `age,sex,cp,chol,target
63,Male,typical,233,0
67,Male,asymptomatic,286,1
41,Female,atypical,204,0
56,Male,asymptomatic,236,1
`
	f, err := dataset.ReadCSV(strings.NewReader(csv), "X_train.csv")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func newTransformer() (*ColumnTransformer, *log.TestLogger) {
	ct := NewColumnTransformer([]string{"cp", "sex", "thal"}, []string{"age", "chol"})
	logger, _ := log.NewTestLogger(log.LevelDebug)
	ct.SetLogger(logger)
	return ct, logger
}

func TestColumnTransformerLayout(t *testing.T) {
	ct, logger := newTransformer()
	out, err := ct.FitTransform(trainFrame(t))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"cp_asymptomatic", "cp_atypical", "cp_typical", "sex_Female", "sex_Male", "age", "chol"}
	if got := ct.FeatureNames(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("FeatureNames = %v", got)
	}
	r, c := out.Dims()
	if r != 4 || c != len(want) {
		t.Fatalf("dims = (%d, %d)", r, c)
	}
	if out.At(0, 2) != 1 || out.At(0, 4) != 1 {
		t.Errorf("row 0 indicators wrong: %v", mat.Row(nil, 0, out))
	}
	if !logger.ContainsMessage("configured column absent from training data") {
		t.Error("dropping thal should be logged")
	}

	var colMean float64
	for i := 0; i < r; i++ {
		colMean += out.At(i, 5)
	}
	if math.Abs(colMean) > 1e-12 {
		t.Errorf("standardized age should have zero mean, got %v", colMean/float64(r))
	}
}

func TestColumnTransformerFitOnce(t *testing.T) {
	ct, _ := newTransformer()
	if err := ct.Fit(trainFrame(t)); err != nil {
		t.Fatal(err)
	}
	if err := ct.Fit(trainFrame(t)); err == nil {
		t.Error("second Fit must fail")
	}
}

func TestColumnTransformerUsesLearnedStatistics(t *testing.T) {
	ct, _ := newTransformer()
	if err := ct.Fit(trainFrame(t)); err != nil {
		t.Fatal(err)
	}
	mean, scale := ct.Scaler.Mean[0], ct.Scaler.Scale[0]

	test := dataset.New("request", "age", "sex", "cp", "chol")
	_ = test.AppendRow("90", "Other", "unknown", "500")
	first, err := ct.Transform(test)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ct.Transform(test)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(first, second) {
		t.Error("Transform is not idempotent")
	}
	if ct.Scaler.Mean[0] != mean || ct.Scaler.Scale[0] != scale {
		t.Error("Transform must not update statistics")
	}
	for j := 0; j < 5; j++ {
		if first.At(0, j) != 0 {
			t.Errorf("unseen categories should encode to zeros, col %d = %v", j, first.At(0, j))
		}
	}
	if got, want := first.At(0, 5), (90-mean)/scale; math.Abs(got-want) > 1e-12 {
		t.Errorf("age = %v, want %v", got, want)
	}
}

func TestColumnTransformerMissingColumnAtTransform(t *testing.T) {
	ct, _ := newTransformer()
	if err := ct.Fit(trainFrame(t)); err != nil {
		t.Fatal(err)
	}
	test := dataset.New("request", "age", "sex")
	_ = test.AppendRow("50", "Male")
	_, err := ct.Transform(test)
	var mc *errors.MissingColumnError
	if !errors.As(err, &mc) {
		t.Errorf("expected MissingColumnError, got %v", err)
	}
}

func TestColumnTransformerGobRoundTrip(t *testing.T) {
	ct, _ := newTransformer()
	if err := ct.Fit(trainFrame(t)); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ct); err != nil {
		t.Fatal(err)
	}
	var back ColumnTransformer
	if err := gob.NewDecoder(&buf).Decode(&back); err != nil {
		t.Fatal(err)
	}
	if !back.IsFitted() {
		t.Fatal("decoded transformer should be fitted")
	}
	a, _ := ct.Transform(trainFrame(t))
	b, err := back.Transform(trainFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(a, b) {
		t.Error("decoded transformer produces different output")
	}
}
