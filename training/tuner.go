package training

import (
	"context"
	"math"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/heartrisk/artifact"
	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/report"
	"github.com/YuminosukeSato/heartrisk/sklearn/model_selection"
)

// DefaultGrids are the tuning grids, keyed with the "clf__" prefix the
// pipeline strips.
func DefaultGrids() map[pipeline.Family]model_selection.ParameterGrid {
	return map[pipeline.Family]model_selection.ParameterGrid{
		pipeline.LogisticRegression: {
			"clf__C":       {0.01, 0.1, 1.0, 10.0},
			"clf__penalty": {"l2"},
			"clf__solver":  {"lbfgs"},
		},
		pipeline.RandomForest: {
			"clf__n_estimators":      {100, 200, 300},
			"clf__max_depth":         {nil, 5, 10},
			"clf__min_samples_split": {2, 5},
			"clf__min_samples_leaf":  {1, 2},
		},
		pipeline.GradientBoosting: {
			"clf__n_estimators":  {100, 200},
			"clf__learning_rate": {0.01, 0.1, 0.2},
			"clf__max_depth":     {3, 5},
		},
	}
}

// TunedFamilies is the tuning order.
var TunedFamilies = []pipeline.Family{pipeline.LogisticRegression, pipeline.RandomForest, pipeline.GradientBoosting}

// TuningResult is one family's tuned outcome on the test table.
type TuningResult struct {
	Family     pipeline.Family
	BestParams map[string]interface{}
	CVScore    float64
	// CVFolds holds the per-fold scores behind CVScore.
	CVFolds  []float64
	CVStd    float64
	Accuracy float64
	ROCAUC   float64
	Report   string
}

// TuneResult is the outcome of Tuner.Tune.
type TuneResult struct {
	Results  []TuningResult
	Best     pipeline.Family
	Artifact *artifact.Artifact
}

// Tuner grid-searches each family with stratified cross-validation scored by
// ROC-AUC and keeps the family with the highest test ROC-AUC.
type Tuner struct {
	Families    []pipeline.Family
	Grids       map[pipeline.Family]model_selection.ParameterGrid
	NewPipeline PipelineFactory
	Folds       int
	Seed        int
	// NJobs bounds concurrent candidate fits; 0 means all CPUs.
	NJobs int
	// ReportDir receives the comparison table and figures when set.
	ReportDir string
	// ArtifactPath receives the winning artifact when set.
	ArtifactPath string

	logger log.Logger
}

// NewTuner returns a tuner with the default grids, 5 folds and seed 42.
func NewTuner(logger log.Logger) *Tuner {
	if logger == nil {
		logger = log.GetLoggerWithName("training.Tuner")
	}
	return &Tuner{
		Families:    TunedFamilies,
		Grids:       DefaultGrids(),
		NewPipeline: pipeline.New,
		Folds:       5,
		Seed:        pipeline.DefaultSeed,
		logger:      logger,
	}
}

// Tune runs the search for every family in order. Families are tuned one
// after another; the grid search parallelizes candidate x fold fits.
func (t *Tuner) Tune(ctx context.Context, d *Data) (*TuneResult, error) {
	if len(t.Families) == 0 {
		return nil, errors.NewValueError("Tuner.Tune", "no families to tune")
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	start := time.Now()

	out := &TuneResult{}
	var bestPipeline *pipeline.Pipeline
	var bestResult TuningResult
	bestAUC := math.Inf(-1)

	for _, f := range t.Families {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		grid, ok := t.Grids[f]
		if !ok {
			return nil, errors.NewValidationError("family", "no parameter grid", string(f))
		}
		p, res, err := t.tuneFamily(f, grid, d)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, res)
		if res.ROCAUC > bestAUC {
			bestAUC = res.ROCAUC
			bestPipeline = p
			bestResult = res
		}
	}

	if t.ReportDir != "" {
		rows := make([]report.ComparisonRow, len(out.Results))
		for i, r := range out.Results {
			rows[i] = report.ComparisonRow{
				Model:      r.Family.DisplayName(),
				BestParams: model_selection.FormatParams(r.BestParams),
				Accuracy:   r.Accuracy,
				ROCAUC:     r.ROCAUC,
			}
		}
		if err := report.WriteComparison(filepath.Join(t.ReportDir, report.ModelComparisonFile), rows); err != nil {
			return nil, err
		}
	}

	a, err := artifact.New(bestPipeline, map[string]float64{
		"accuracy": bestResult.Accuracy,
		"roc_auc":  bestResult.ROCAUC,
		"cv_score": bestResult.CVScore,
	})
	if err != nil {
		return nil, err
	}
	if t.ArtifactPath != "" {
		if err := a.Save(t.ArtifactPath); err != nil {
			return nil, err
		}
	}
	out.Best = bestResult.Family
	out.Artifact = a

	t.logger.Info("best tuned model",
		log.PhaseKey, log.PhaseTuning,
		log.ModelNameKey, bestResult.Family.DisplayName(),
		log.ModelIDKey, a.ID,
		log.ROCAUCKey, bestResult.ROCAUC,
		log.PathKey, t.ArtifactPath,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (t *Tuner) tuneFamily(f pipeline.Family, grid model_selection.ParameterGrid, d *Data) (*pipeline.Pipeline, TuningResult, error) {
	res := TuningResult{Family: f}
	name := f.DisplayName()
	t.logger.Info("tuning", log.PhaseKey, log.PhaseTuning, log.ModelNameKey, name, "candidates", grid.Size())

	factory := func() model_selection.Estimator[*dataset.Frame] {
		p, err := t.NewPipeline(f)
		if err != nil {
			// family was validated by the caller
			panic(err)
		}
		p.SetLogger(t.logger)
		return p
	}
	if _, err := t.NewPipeline(f); err != nil {
		return nil, res, err
	}

	gs := model_selection.NewGridSearchCV(factory, pipeline.Take, grid)
	gs.CV = model_selection.NewStratifiedKFold(t.Folds, true, t.Seed)
	gs.NJobs = t.NJobs
	gs.Logger = t.logger.With(log.ModelNameKey, name)
	if err := gs.Fit(d.XTrain, d.YTrain); err != nil {
		return nil, res, errors.Wrapf(err, "tune %s", name)
	}
	best, ok := gs.BestEstimator.(*pipeline.Pipeline)
	if !ok {
		return nil, res, errors.NewModelError("Tuner.Tune", "refit", errors.New("best estimator is not a pipeline"))
	}

	preds, err := predict(best, d.XTest)
	if err != nil {
		return nil, res, errors.Wrapf(err, "evaluate %s", name)
	}
	if preds.Proba == nil {
		return nil, res, errors.NewModelError("Tuner.Tune", "probability", errors.Newf("%s has no probability output", name))
	}
	if res.Accuracy, err = metrics.Accuracy(d.YTest, preds.Labels); err != nil {
		return nil, res, err
	}
	if res.ROCAUC, err = metrics.AUC(d.YTest, preds.Proba); err != nil {
		return nil, res, err
	}
	if res.Report, err = metrics.ClassificationReport(d.YTest, preds.Labels); err != nil {
		return nil, res, err
	}
	res.BestParams = gs.BestParams
	res.CVScore = gs.BestScore
	res.CVFolds = gs.CVResults[gs.BestIndex].FoldScores
	res.CVStd = gs.CVResults[gs.BestIndex].StdScore

	t.logger.Info("tuned model evaluated",
		log.PhaseKey, log.PhaseTuning,
		log.ModelNameKey, name,
		log.HyperParamsKey, model_selection.FormatParams(gs.BestParams),
		"cv.best_score", gs.BestScore,
		"cv.std", res.CVStd,
		"cv.folds", res.CVFolds,
		log.AccuracyKey, res.Accuracy,
		log.ROCAUCKey, res.ROCAUC,
	)
	t.logger.Info("classification report\n"+res.Report, log.ModelNameKey, name)

	if t.ReportDir != "" {
		if err := t.figures(name, d, preds, res.ROCAUC); err != nil {
			return nil, res, err
		}
	}
	return best, res, nil
}

// figures writes confusion_matrix_<Name>.png and roc_curve_<Name>.png.
func (t *Tuner) figures(name string, d *Data, preds predictions, auc float64) error {
	cm, labels, err := metrics.ConfusionMatrix(d.YTest, preds.Labels)
	if err != nil {
		return err
	}
	safe := report.FileSafe(name)
	if err := report.ConfusionMatrix(filepath.Join(t.ReportDir, "confusion_matrix_"+safe+".png"),
		"Confusion Matrix - "+name, cm, labels); err != nil {
		return err
	}
	fpr, tpr, _, err := metrics.ROCCurve(d.YTest, preds.Proba)
	if err != nil {
		return err
	}
	return report.ROCCurve(filepath.Join(t.ReportDir, "roc_curve_"+safe+".png"),
		"ROC Curve - "+name, fpr, tpr, auc)
}
