// Package training fits the candidate pipelines on the train split, scores
// them on the held-out split and persists the winner as the serving
// artifact. Selector compares the families at their defaults; Tuner runs a
// cross-validated grid search per family first.
package training

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/heart"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Data is the labelled material both trainers consume.
type Data struct {
	XTrain, XTest *dataset.Frame
	YTrain, YTest *mat.VecDense
}

// FromSplit parses the label tables of a split.
func FromSplit(sp *heart.Split) (*Data, error) {
	yTrain, err := heart.Labels(sp.YTrain)
	if err != nil {
		return nil, err
	}
	yTest, err := heart.Labels(sp.YTest)
	if err != nil {
		return nil, err
	}
	d := &Data{XTrain: sp.XTrain, XTest: sp.XTest, YTrain: yTrain, YTest: yTest}
	return d, d.check()
}

// LoadData reads the four split tables from dir.
func LoadData(dir string) (*Data, error) {
	sp, err := heart.LoadSplit(dir)
	if err != nil {
		return nil, err
	}
	return FromSplit(sp)
}

func (d *Data) check() error {
	if d.XTrain.NRows() != d.YTrain.Len() {
		return errors.NewDimensionError("training.Data", d.XTrain.NRows(), d.YTrain.Len(), 0)
	}
	if d.XTest.NRows() != d.YTest.Len() {
		return errors.NewDimensionError("training.Data", d.XTest.NRows(), d.YTest.Len(), 0)
	}
	return nil
}

// PipelineFactory builds a fresh, unfitted pipeline for a family.
type PipelineFactory func(pipeline.Family) (*pipeline.Pipeline, error)

// predictions holds a fitted pipeline's output on the test table. Proba is
// nil when the classifier has no probability output.
type predictions struct {
	Labels *mat.VecDense
	Proba  *mat.VecDense
}

func predict(p *pipeline.Pipeline, X *dataset.Frame) (predictions, error) {
	var out predictions
	labels, err := p.Predict(X)
	if err != nil {
		return out, err
	}
	out.Labels = column(labels, 0)
	if !p.HasProbability() {
		return out, nil
	}
	proba, err := p.PredictProba(X)
	if err != nil {
		return out, err
	}
	_, c := proba.Dims()
	out.Proba = column(proba, c-1)
	return out, nil
}

func column(m mat.Matrix, j int) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, j))
	}
	return v
}
