package report

import (
	"fmt"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/metrics"
)

// Report file names.
const (
	ModelSelectionFile  = "model_selection.csv"
	ModelComparisonFile = "model_comparison.csv"
)

// SelectionRow is one candidate's held-out scores from model selection.
type SelectionRow struct {
	Model  string
	Scores metrics.Scores
}

// ComparisonRow is one tuned family's result.
type ComparisonRow struct {
	Model      string
	BestParams string
	Accuracy   float64
	ROCAUC     float64
}

// SelectionTable renders rows as Model, Accuracy, Precision, Recall, F1,
// ROC-AUC. A missing ROC-AUC is written as N/A.
func SelectionTable(rows []SelectionRow) *dataset.Frame {
	f := dataset.New("model_selection", "Model", "Accuracy", "Precision", "Recall", "F1", "ROC-AUC")
	for _, r := range rows {
		_ = f.AppendRow(r.Model,
			formatScore(r.Scores.Accuracy),
			formatScore(r.Scores.Precision),
			formatScore(r.Scores.Recall),
			formatScore(r.Scores.F1),
			metrics.FormatAUC(r.Scores.ROCAUC),
		)
	}
	return f
}

// ComparisonTable renders rows as Model, Best Params, Accuracy, ROC-AUC.
func ComparisonTable(rows []ComparisonRow) *dataset.Frame {
	f := dataset.New("model_comparison", "Model", "Best Params", "Accuracy", "ROC-AUC")
	for _, r := range rows {
		_ = f.AppendRow(r.Model, r.BestParams, formatScore(r.Accuracy), formatScore(r.ROCAUC))
	}
	return f
}

// WriteSelection writes the model selection table to path.
func WriteSelection(path string, rows []SelectionRow) error {
	return SelectionTable(rows).WriteCSVFile(path)
}

// WriteComparison writes the tuning comparison table to path.
func WriteComparison(path string, rows []ComparisonRow) error {
	return ComparisonTable(rows).WriteCSVFile(path)
}

func formatScore(v float64) string { return fmt.Sprintf("%.4f", v) }
