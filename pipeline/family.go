package pipeline

import (
	"encoding/gob"
	"slices"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/ensemble"
	"github.com/YuminosukeSato/heartrisk/sklearn/linear_model"
	"github.com/YuminosukeSato/heartrisk/sklearn/neighbors"
	"github.com/YuminosukeSato/heartrisk/sklearn/svm"
)

// Family tags the classifier kind held by a pipeline.
type Family string

const (
	LogisticRegression Family = "logistic_regression"
	RandomForest       Family = "random_forest"
	GradientBoosting   Family = "gradient_boosting"
	SVM                Family = "svm"
	KNN                Family = "knn"
)

// DefaultSeed seeds every stochastic candidate.
const DefaultSeed = 42

// Families lists the candidates in model-selection order.
var Families = []Family{LogisticRegression, RandomForest, GradientBoosting, SVM, KNN}

var displayNames = map[Family]string{
	LogisticRegression: "Logistic Regression",
	RandomForest:       "Random Forest",
	GradientBoosting:   "Gradient Boosting",
	SVM:                "SVM",
	KNN:                "KNN",
}

var typeNames = map[Family]string{
	LogisticRegression: "LogisticRegression",
	RandomForest:       "RandomForestClassifier",
	GradientBoosting:   "GradientBoostingClassifier",
	SVM:                "SVC",
	KNN:                "KNeighborsClassifier",
}

func init() {
	gob.Register(&linear_model.LogisticRegression{})
	gob.Register(&ensemble.RandomForestClassifier{})
	gob.Register(&ensemble.GradientBoostingClassifier{})
	gob.Register(&svm.SVC{})
	gob.Register(&neighbors.KNeighborsClassifier{})
}

// ParseFamily accepts a family tag.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if !slices.Contains(Families, f) {
		return "", errors.NewValidationError("family", "unknown classifier family", s)
	}
	return f, nil
}

// DisplayName returns the human readable name used in reports.
func (f Family) DisplayName() string {
	if n, ok := displayNames[f]; ok {
		return n
	}
	return string(f)
}

// TypeName returns the classifier's type name, reported as model_type.
func (f Family) TypeName() string {
	if n, ok := typeNames[f]; ok {
		return n
	}
	return string(f)
}

// NewClassifier returns the family's classifier with the defaults used for
// model selection.
func NewClassifier(f Family) (model.Classifier, error) {
	switch f {
	case LogisticRegression:
		return linear_model.NewLogisticRegression(
			linear_model.WithLRMaxIter(1000),
			linear_model.WithLRRandomState(DefaultSeed),
		), nil
	case RandomForest:
		return ensemble.NewRandomForestClassifier(
			ensemble.WithNEstimators(200),
			ensemble.WithForestRandomState(DefaultSeed),
		), nil
	case GradientBoosting:
		return ensemble.NewGradientBoostingClassifier(
			ensemble.WithGBRandomState(DefaultSeed),
		), nil
	case SVM:
		return svm.NewSVC(
			svm.WithProbability(true),
			svm.WithRandomState(DefaultSeed),
		), nil
	case KNN:
		return neighbors.NewKNeighborsClassifier(neighbors.WithNNeighbors(7)), nil
	}
	return nil, errors.NewValidationError("family", "unknown classifier family", string(f))
}
