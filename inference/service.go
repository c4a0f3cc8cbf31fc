// Package inference serves predictions from a persisted pipeline artifact.
//
// A Service is ready when its artifact loaded at construction and unready
// otherwise; it never changes state afterwards. The loaded artifact is only
// read, so a Service is safe for concurrent use.
package inference

import (
	"context"
	"math"
	"time"

	"github.com/YuminosukeSato/heartrisk/artifact"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// Prediction is the result of one prediction call.
type Prediction struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	RiskLevel   string  `json:"risk_level"`
	Message     string  `json:"message"`
}

// Health is the liveness report.
type Health struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	ModelType string   `json:"model_type"`
	Features  []string `json:"features"`
	ModelPath string   `json:"model_path"`
}

// Service wraps a loaded artifact.
type Service struct {
	path    string
	art     *artifact.Artifact
	loadErr error
	logger  log.Logger
}

// NewService loads the artifact at path. A failed load is logged and leaves
// the service unready; it is never fatal.
func NewService(path string, logger log.Logger) *Service {
	if logger == nil {
		logger = log.GetLoggerWithName("inference")
	}
	s := &Service{path: path, logger: logger}
	a, err := artifact.Load(path)
	if err != nil {
		s.loadErr = err
		logger.Error("error loading model",
			log.PhaseKey, log.PhaseInference,
			log.PathKey, path,
			"error", err,
		)
		return s
	}
	s.art = a
	logger.Info("model loaded successfully",
		log.PhaseKey, log.PhaseInference,
		log.PathKey, path,
		log.ModelNameKey, a.Family.DisplayName(),
		log.ModelIDKey, a.ID,
	)
	return s
}

// NewServiceFromArtifact returns a ready service around an in-memory
// artifact.
func NewServiceFromArtifact(a *artifact.Artifact, path string, logger log.Logger) *Service {
	if logger == nil {
		logger = log.GetLoggerWithName("inference")
	}
	return &Service{path: path, art: a, logger: logger}
}

// Ready reports whether a model is loaded.
func (s *Service) Ready() bool { return s.art != nil }

// LoadError returns why the artifact failed to load, or nil.
func (s *Service) LoadError() error { return s.loadErr }

// Health always succeeds.
func (s *Service) Health() Health {
	h := Health{Status: "healthy", Model: "not loaded"}
	if s.Ready() {
		h.Model = "loaded"
	}
	return h
}

// ModelInfo requires a loaded model.
func (s *Service) ModelInfo() (ModelInfo, error) {
	if !s.Ready() {
		return ModelInfo{}, errors.NewModelUnavailableError("model-info")
	}
	return ModelInfo{
		ModelType: s.art.ModelType(),
		Features:  append([]string(nil), heart.FeatureNames...),
		ModelPath: s.path,
	}, nil
}

// Predict scores one record. Validation failures are ValidationErrors;
// anything that goes wrong inside the pipeline, panics included, is a
// PredictionError.
func (s *Service) Predict(ctx context.Context, rec heart.Record) (Prediction, error) {
	if !s.Ready() {
		return Prediction{}, errors.NewModelUnavailableError("predict")
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if err := rec.Validate(); err != nil {
		return Prediction{}, err
	}
	start := time.Now()

	var label int
	var p float64
	err := errors.SafeExecute("inference.Predict", func() error {
		X := rec.Canonical().Frame()
		labels, err := s.art.Pipeline.Predict(X)
		if err != nil {
			return err
		}
		proba, err := s.art.Pipeline.PredictProba(X)
		if err != nil {
			return err
		}
		_, c := proba.Dims()
		label = int(labels.At(0, 0))
		p = proba.At(0, c-1)
		if math.IsNaN(p) || p < 0 || p > 1 {
			return errors.Newf("probability %v out of range", p)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("prediction failed", log.PhaseKey, log.PhaseInference, "error", err)
		return Prediction{}, errors.NewPredictionError(err)
	}

	out := Prediction{
		Prediction:  label,
		Probability: math.Round(p*1e4) / 1e4,
		RiskLevel:   heart.RiskTier(p),
		Message:     heart.Message(label, p),
	}
	s.logger.Info("prediction",
		log.PhaseKey, log.PhaseInference,
		log.ModelNameKey, s.art.Family.DisplayName(),
		log.ProbabilityKey, out.Probability,
		log.RiskLevelKey, out.RiskLevel,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}
