package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

func requirePNG(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("figure missing: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Errorf("%s is not a PNG", path)
	}
}

func TestROCCurve(t *testing.T) {
	y := mat.NewVecDense(6, []float64{0, 0, 1, 1, 0, 1})
	score := mat.NewVecDense(6, []float64{0.1, 0.4, 0.35, 0.8, 0.2, 0.9})
	fpr, tpr, _, err := metrics.ROCCurve(y, score)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "roc_curve_Random_Forest.png")
	if err := ROCCurve(path, "ROC Curve - Random Forest", fpr, tpr, 0.89); err != nil {
		t.Fatal(err)
	}
	requirePNG(t, path)

	var de *errors.DimensionError
	if err := ROCCurve(path, "bad", []float64{0}, nil, 0); !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestConfusionMatrix(t *testing.T) {
	dir := t.TempDir()
	cm := mat.NewDense(2, 2, []float64{50, 8, 10, 80})
	path := filepath.Join(dir, "confusion_matrix_SVM.png")
	if err := ConfusionMatrix(path, "Confusion Matrix - SVM", cm, []float64{0, 1}); err != nil {
		t.Fatal(err)
	}
	requirePNG(t, path)

	// a constant matrix must not break the colour scale
	flat := mat.NewDense(2, 2, []float64{5, 5, 5, 5})
	if err := ConfusionMatrix(filepath.Join(dir, "flat.png"), "flat", flat, []float64{0, 1}); err != nil {
		t.Fatal(err)
	}
}

func TestRenderEDA(t *testing.T) {
	X, y := heart.SyntheticCohort(200, 3)
	labels := make([]string, y.Len())
	for i := range labels {
		labels[i] = dataset.FormatFloat(y.AtVec(i))
	}
	cleaned, err := X.WithColumn(heart.ColTarget, labels)
	if err != nil {
		t.Fatal(err)
	}

	logger, _ := log.NewTestLogger(log.LevelInfo)
	dir := t.TempDir()
	if err := NewEDA(logger).RenderEDA(cleaned, dir); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{ClassBalanceFile, AgeDistributionFile, CorrelationHeatmapFile, CholesterolFile, ThalchByAgeGroupFile} {
		requirePNG(t, filepath.Join(dir, name))
	}
	if !logger.ContainsMessage("EDA figures written") {
		t.Error("missing log line")
	}

	var se *errors.SchemaError
	if err := NewEDA(logger).RenderEDA(X, dir); !errors.As(err, &se) {
		t.Errorf("expected SchemaError without target, got %v", err)
	}
}

func TestTables(t *testing.T) {
	auc := 0.91234
	sel := SelectionTable([]SelectionRow{
		{Model: "Logistic Regression", Scores: metrics.Scores{Accuracy: 0.85, Precision: 0.8, Recall: 0.9, F1: 0.847, ROCAUC: &auc}},
		{Model: "SVM", Scores: metrics.Scores{Accuracy: 0.8}},
	})
	var buf bytes.Buffer
	if err := sel.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := "Model,Accuracy,Precision,Recall,F1,ROC-AUC\n" +
		"Logistic Regression,0.8500,0.8000,0.9000,0.8470,0.9123\n" +
		"SVM,0.8000,0.0000,0.0000,0.0000,N/A\n"
	if buf.String() != want {
		t.Errorf("selection table:\n%s\nwant:\n%s", buf.String(), want)
	}

	path := filepath.Join(t.TempDir(), "report", ModelComparisonFile)
	err := WriteComparison(path, []ComparisonRow{
		{Model: "Random Forest", BestParams: `{"clf__max_depth":null}`, Accuracy: 0.84, ROCAUC: 0.92},
	})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(b), "Model,Best Params,Accuracy,ROC-AUC\n") {
		t.Errorf("comparison header: %q", b)
	}
	if !strings.Contains(string(b), `"{""clf__max_depth"":null}"`) {
		t.Errorf("params should be CSV-quoted: %q", b)
	}
}

func TestFileSafe(t *testing.T) {
	if got := FileSafe("Logistic Regression"); got != "Logistic_Regression" {
		t.Errorf("FileSafe = %q", got)
	}
}
