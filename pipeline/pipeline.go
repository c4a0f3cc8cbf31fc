// Package pipeline chains the column transformer and a classifier into one
// estimator that fits on and predicts from raw feature tables.
package pipeline

import (
	"fmt"
	"maps"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/preprocessing"
)

// Parameter name prefixes routed to the classifier.
var classifierPrefixes = []string{"clf__", "classifier__", "model__"}

// Pipeline is preprocessor → classifier. Exported fields are persisted with
// encoding/gob; the concrete classifier types are registered in this
// package.
type Pipeline struct {
	Family       Family
	Preprocessor *preprocessing.ColumnTransformer
	Classifier   model.Classifier

	logger log.Logger
}

// New returns an unfitted pipeline for the family with the heart feature
// layout and the family's default classifier.
func New(family Family) (*Pipeline, error) {
	clf, err := NewClassifier(family)
	if err != nil {
		return nil, errors.NewPipelineBuildError("classifier", err)
	}
	return &Pipeline{
		Family:       family,
		Preprocessor: preprocessing.NewColumnTransformer(heart.CategoricalColumns, heart.NumericColumns),
		Classifier:   clf,
	}, nil
}

// SetLogger overrides the component logger.
func (p *Pipeline) SetLogger(l log.Logger) {
	p.logger = l
	p.Preprocessor.SetLogger(l)
}

func (p *Pipeline) getLogger() log.Logger {
	if p.logger == nil {
		p.logger = log.GetLoggerWithName("pipeline")
	}
	return p.logger
}

// IsFitted reports whether both stages are fitted.
func (p *Pipeline) IsFitted() bool {
	return p.Preprocessor != nil && p.Preprocessor.IsFitted() &&
		p.Classifier != nil && p.Classifier.IsFitted()
}

// Fit fits the preprocessor on X, then the classifier on the transformed
// matrix. A pipeline is fitted once; build a new one to refit.
func (p *Pipeline) Fit(X *dataset.Frame, y mat.Matrix) error {
	Xt, err := p.Preprocessor.FitTransform(X)
	if err != nil {
		return errors.NewPipelineBuildError("preprocessor", err)
	}
	if err := p.Classifier.Fit(Xt, y); err != nil {
		return errors.NewPipelineBuildError("classifier", err)
	}
	p.getLogger().Debug("pipeline fitted",
		log.ModelNameKey, p.Family.DisplayName(),
		log.SamplesKey, X.NRows(),
		log.FeaturesKey, p.Preprocessor.NOutputs(),
	)
	return nil
}

func (p *Pipeline) transform(op string, X *dataset.Frame) (*mat.Dense, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", op)
	}
	return p.Preprocessor.Transform(X)
}

// Predict returns class labels for every row of X.
func (p *Pipeline) Predict(X *dataset.Frame) (mat.Matrix, error) {
	Xt, err := p.transform("Predict", X)
	if err != nil {
		return nil, err
	}
	return p.Classifier.Predict(Xt)
}

// PredictProba returns class probabilities for every row of X, columns in
// ascending label order.
func (p *Pipeline) PredictProba(X *dataset.Frame) (mat.Matrix, error) {
	Xt, err := p.transform("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(Xt)
}

// HasProbability reports whether the classifier produces probabilities.
func (p *Pipeline) HasProbability() bool {
	if pp, ok := p.Classifier.(interface{ HasProbability() bool }); ok {
		return pp.HasProbability()
	}
	return true
}

// SetParams forwards parameters to the classifier. Keys may carry a
// "clf__", "classifier__" or "model__" prefix.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	stripped := make(map[string]interface{}, len(params))
	for k, v := range params {
		stripped[stripPrefix(k)] = v
	}
	return p.Classifier.SetParams(stripped)
}

// GetParams returns the classifier parameters under the "clf__" prefix.
func (p *Pipeline) GetParams() map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range p.Classifier.GetParams() {
		out[classifierPrefixes[0]+k] = v
	}
	return out
}

// ClassifierParams returns the bare classifier parameters.
func (p *Pipeline) ClassifierParams() map[string]interface{} {
	return maps.Clone(p.Classifier.GetParams())
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(%s, %v)", p.Family.DisplayName(), p.Classifier)
}

func stripPrefix(key string) string {
	for _, prefix := range classifierPrefixes {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			return rest
		}
	}
	return key
}

// Take selects rows of a feature table; it is the row selector used by the
// grid search over pipelines.
func Take(X *dataset.Frame, rows []int) *dataset.Frame { return X.Take(rows) }
