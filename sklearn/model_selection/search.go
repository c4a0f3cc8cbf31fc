package model_selection

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/metrics"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// Estimator is anything the grid search can configure, fit and score. D is
// the feature container: a matrix for bare classifiers or a table for
// pipelines.
type Estimator[D any] interface {
	SetParams(params map[string]interface{}) error
	Fit(X D, y mat.Matrix) error
	Predict(X D) (mat.Matrix, error)
	PredictProba(X D) (mat.Matrix, error)
}

// Scoring names accepted by GridSearchCV.
const (
	ScoringROCAUC   = "roc_auc"
	ScoringAccuracy = "accuracy"
	ScoringF1       = "f1"
)

// Score evaluates a fitted estimator on (X, y) with the named metric. For
// roc_auc the last probability column is the positive class.
func Score[D any](est Estimator[D], X D, y mat.Matrix, scoring string) (float64, error) {
	yTrue := mat.VecDenseCopyOf(columnVector(y))
	switch scoring {
	case ScoringROCAUC:
		proba, err := est.PredictProba(X)
		if err != nil {
			return 0, err
		}
		_, c := proba.Dims()
		return metrics.AUC(yTrue, columnOf(proba, c-1))
	case ScoringAccuracy, ScoringF1:
		pred, err := est.Predict(X)
		if err != nil {
			return 0, err
		}
		if scoring == ScoringAccuracy {
			return metrics.Accuracy(yTrue, columnOf(pred, 0))
		}
		return metrics.F1Score(yTrue, columnOf(pred, 0))
	}
	return 0, errors.NewValidationError("scoring", "must be roc_auc, accuracy or f1", scoring)
}

// CVResult holds the cross-validated scores of one parameter combination.
type CVResult struct {
	Params     map[string]interface{}
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
	Rank       int
}

// GridSearchCV evaluates every combination of Grid with cross-validation and
// refits the best one on the full data.
type GridSearchCV[D any] struct {
	// Factory returns a fresh, unfitted estimator for every fit.
	Factory func() Estimator[D]
	// Take selects rows of D.
	Take    func(X D, rows []int) D
	Grid    ParameterGrid
	CV      Splitter
	Scoring string
	// NJobs bounds concurrent fits; 0 means all CPUs.
	NJobs  int
	Refit  bool
	Logger log.Logger

	CVResults     []CVResult
	BestIndex     int
	BestParams    map[string]interface{}
	BestScore     float64
	BestEstimator Estimator[D]
}

// NewGridSearchCV creates a search scored by ROC-AUC over 5 stratified
// shuffled folds with seed 42 that refits the winner.
func NewGridSearchCV[D any](factory func() Estimator[D], take func(D, []int) D, grid ParameterGrid) *GridSearchCV[D] {
	return &GridSearchCV[D]{
		Factory: factory,
		Take:    take,
		Grid:    grid,
		CV:      NewStratifiedKFold(5, true, 42),
		Scoring: ScoringROCAUC,
		Refit:   true,
	}
}

func (gs *GridSearchCV[D]) logger() log.Logger {
	if gs.Logger == nil {
		gs.Logger = log.GetLoggerWithName("model_selection")
	}
	return gs.Logger
}

// Fit runs the search. Candidate x fold fits run concurrently and results
// are collected by index; the best candidate is the first with the highest
// mean score.
func (gs *GridSearchCV[D]) Fit(X D, y mat.Matrix) error {
	start := time.Now()
	logger := gs.logger()

	candidates, err := gs.Grid.Combinations()
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return errors.NewValueError("GridSearchCV.Fit", "parameter grid is empty")
	}
	yVec := mat.VecDenseCopyOf(columnVector(y))
	folds, err := gs.CV.Split(yVec)
	if err != nil {
		return err
	}

	nFolds := len(folds)
	scores := make([]float64, len(candidates)*nFolds)
	err = parallel.ForEach(len(scores), gs.NJobs, func(task int) error {
		c, f := task/nFolds, task%nFolds
		fold := folds[f]

		est := gs.Factory()
		if err := est.SetParams(candidates[c]); err != nil {
			return err
		}
		if err := est.Fit(gs.Take(X, fold.TrainIndices), takeRows(yVec, fold.TrainIndices)); err != nil {
			return errors.Wrapf(err, "candidate %d fold %d", c, f)
		}
		s, err := Score(est, gs.Take(X, fold.TestIndices), takeRows(yVec, fold.TestIndices), gs.Scoring)
		if err != nil {
			return errors.Wrapf(err, "candidate %d fold %d", c, f)
		}
		scores[task] = s
		return nil
	})
	if err != nil {
		return err
	}

	gs.CVResults = make([]CVResult, len(candidates))
	gs.BestIndex = -1
	gs.BestScore = math.Inf(-1)
	for c, params := range candidates {
		foldScores := scores[c*nFolds : (c+1)*nFolds]
		mean := stat.Mean(foldScores, nil)
		gs.CVResults[c] = CVResult{
			Params:     params,
			FoldScores: append([]float64(nil), foldScores...),
			MeanScore:  mean,
			StdScore:   stat.PopStdDev(foldScores, nil),
		}
		if mean > gs.BestScore {
			gs.BestScore = mean
			gs.BestIndex = c
		}
		logger.Debug("candidate scored",
			log.HyperParamsKey, FormatParams(params),
			"cv.mean", mean,
		)
	}
	rankResults(gs.CVResults)
	gs.BestParams = candidates[gs.BestIndex]

	if gs.Refit {
		best := gs.Factory()
		if err := best.SetParams(gs.BestParams); err != nil {
			return err
		}
		if err := best.Fit(X, y); err != nil {
			return errors.Wrap(err, "refit best candidate")
		}
		gs.BestEstimator = best
	}

	logger.Info("grid search complete",
		"candidates", len(candidates),
		"folds", nFolds,
		"scoring", gs.Scoring,
		"best_score", gs.BestScore,
		log.HyperParamsKey, FormatParams(gs.BestParams),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// rankResults assigns rank 1 to the highest mean; equal means share a rank.
func rankResults(results []CVResult) {
	for i := range results {
		rank := 1
		for j := range results {
			if results[j].MeanScore > results[i].MeanScore {
				rank++
			}
		}
		results[i].Rank = rank
	}
}

// TakeMatrixRows selects rows of a matrix; it is the Take function for
// estimators that work on bare matrices.
func TakeMatrixRows(X mat.Matrix, rows []int) mat.Matrix {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

func takeRows(y *mat.VecDense, rows []int) *mat.Dense {
	out := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		out.Set(i, 0, y.AtVec(r))
	}
	return out
}

func columnVector(y mat.Matrix) mat.Vector {
	if v, ok := y.(mat.Vector); ok {
		return v
	}
	r, _ := y.Dims()
	col := make([]float64, r)
	mat.Col(col, 0, y)
	return mat.NewVecDense(r, col)
}

func columnOf(m mat.Matrix, j int) *mat.VecDense {
	r, _ := m.Dims()
	col := make([]float64, r)
	mat.Col(col, j, m)
	return mat.NewVecDense(r, col)
}
