// Package model defines the estimator contracts shared by every classifier
// and transformer, plus fitted-state tracking and gob persistence.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit trains on X (n_samples x n_features) and y (n_samples x 1).
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict returns an n_samples x 1 matrix of class labels.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ProbabilisticPredictor は確率を出力するモデルのインターフェース
type ProbabilisticPredictor interface {
	// PredictProba returns n_samples x n_classes probabilities. Columns
	// follow the ascending order of the labels seen in Fit.
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter exposes hyperparameters by their snake_case names.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter accepts hyperparameters by their snake_case names.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Classifier is the contract every candidate family satisfies so that the
// pipeline, the selector and the grid search can treat them uniformly.
type Classifier interface {
	Fitter
	Predictor
	ProbabilisticPredictor
	ParameterGetter
	ParameterSetter

	// IsFitted reports whether Fit has completed successfully.
	IsFitted() bool
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
