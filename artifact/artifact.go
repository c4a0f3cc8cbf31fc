// Package artifact persists a fitted pipeline together with the metadata the
// inference service reports: family, hyperparameters, feature schema and the
// metrics that won it the selection.
package artifact

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// FormatVersion is bumped whenever the encoded layout changes.
const FormatVersion = 1

// Artifact is immutable once saved.
type Artifact struct {
	FormatVersion int
	ID            string
	CreatedAt     time.Time

	Family   pipeline.Family
	Params   map[string]string
	Features []string
	Metrics  map[string]float64

	Pipeline *pipeline.Pipeline
}

// New wraps a fitted pipeline. Params are rendered as strings so that the
// gob stream carries no interface values besides the classifier.
func New(p *pipeline.Pipeline, metrics map[string]float64) (*Artifact, error) {
	if p == nil || !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "artifact.New")
	}
	params := make(map[string]string)
	for k, v := range p.ClassifierParams() {
		if v == nil {
			params[k] = "None"
			continue
		}
		params[k] = fmt.Sprint(v)
	}
	return &Artifact{
		FormatVersion: FormatVersion,
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Family:        p.Family,
		Params:        params,
		Features:      append([]string(nil), heart.FeatureNames...),
		Metrics:       metrics,
		Pipeline:      p,
	}, nil
}

// Save writes the artifact atomically: readers see the old file or the new
// one, never a partial write.
func (a *Artifact) Save(path string) error {
	if err := model.SaveModel(a, path); err != nil {
		return errors.Wrapf(err, "save artifact %s", path)
	}
	return nil
}

// Load reads and checks an artifact. A missing file is a FileNotFoundError;
// an unreadable or incompatible one is a ConfigurationError.
func Load(path string) (*Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path, "Run the train or tune command first.")
		}
		return nil, errors.NewConfigurationError(path, err)
	}
	var a Artifact
	if err := model.LoadModel(&a, path); err != nil {
		return nil, errors.NewConfigurationError(path, err)
	}
	if a.FormatVersion != FormatVersion {
		return nil, errors.NewConfigurationError(path,
			errors.Newf("artifact format version %d, expected %d", a.FormatVersion, FormatVersion))
	}
	if a.Pipeline == nil || !a.Pipeline.IsFitted() {
		return nil, errors.NewConfigurationError(path, errors.New("artifact holds no fitted pipeline"))
	}
	return &a, nil
}

// ModelType returns the classifier type name.
func (a *Artifact) ModelType() string { return a.Family.TypeName() }
