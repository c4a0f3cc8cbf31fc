// Package neighbors provides a brute-force k-nearest-neighbours classifier.
package neighbors

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// KNeighborsClassifier votes among the k training samples closest in
// Euclidean distance. Equidistant neighbours are ordered by training index,
// and vote ties go to the smaller class label.
type KNeighborsClassifier struct {
	state *model.StateManager

	nNeighbors int
	weights    string // "uniform" or "distance"
	nJobs      int

	rows_     [][]float64
	yIdx_     []int
	classes_  []float64
	nFeatures int
}

// Option configures a KNeighborsClassifier.
type Option func(*KNeighborsClassifier)

// NewKNeighborsClassifier returns a classifier with k=5 uniform votes.
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	k := &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: 5,
		weights:    "uniform",
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// WithNNeighbors sets k.
func WithNNeighbors(n int) Option { return func(k *KNeighborsClassifier) { k.nNeighbors = n } }

// WithWeights sets the vote weighting: "uniform" or "distance".
func WithWeights(w string) Option { return func(k *KNeighborsClassifier) { k.weights = w } }

// WithNJobs bounds the goroutines used for queries; 0 means all CPUs.
func WithNJobs(n int) Option { return func(k *KNeighborsClassifier) { k.nJobs = n } }

// IsFitted reports whether Fit has completed.
func (k *KNeighborsClassifier) IsFitted() bool { return k.state != nil && k.state.IsFitted() }

// Classes returns the class labels in ascending order.
func (k *KNeighborsClassifier) Classes() []float64 { return k.classes_ }

// Fit memorises the training data.
func (k *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("KNeighborsClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if k.nNeighbors <= 0 {
		return errors.NewValidationError("n_neighbors", "must be positive", k.nNeighbors)
	}
	if k.nNeighbors > nSamples {
		return errors.NewValueError("KNeighborsClassifier.Fit",
			fmt.Sprintf("n_neighbors=%d exceeds n_samples=%d", k.nNeighbors, nSamples))
	}
	if k.weights != "uniform" && k.weights != "distance" {
		return errors.NewValidationError("weights", "must be 'uniform' or 'distance'", k.weights)
	}
	if k.state == nil {
		k.state = model.NewStateManager()
	}
	k.state.Reset()

	k.classes_ = model.ClassLabels(y)
	if k.yIdx_, err = model.LabelIndices(y, k.classes_); err != nil {
		return err
	}
	k.rows_ = model.Rows(X)
	k.nFeatures = nFeatures

	k.state.SetDimensions(nFeatures, nSamples)
	k.state.SetFitted()
	return nil
}

type neighbor struct {
	idx  int
	dist float64
}

// kNearest returns the k closest training samples to x.
func (k *KNeighborsClassifier) kNearest(x []float64) []neighbor {
	all := make([]neighbor, len(k.rows_))
	for i, r := range k.rows_ {
		all[i] = neighbor{idx: i, dist: floats.Distance(r, x, 2)}
	}
	slices.SortStableFunc(all, func(a, b neighbor) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})
	return all[:k.nNeighbors]
}

func (k *KNeighborsClassifier) votes(x []float64, out []float64) {
	clear(out)
	nn := k.kNearest(x)
	if k.weights == "distance" {
		// an exact match takes all the weight
		exact := false
		for _, n := range nn {
			if n.dist == 0 {
				out[k.yIdx_[n.idx]]++
				exact = true
			}
		}
		if !exact {
			for _, n := range nn {
				out[k.yIdx_[n.idx]] += 1 / n.dist
			}
		}
	} else {
		for _, n := range nn {
			out[k.yIdx_[n.idx]]++
		}
	}
	floats.Scale(1/floats.Sum(out), out)
}

func (k *KNeighborsClassifier) checkPredict(method string, X mat.Matrix) error {
	if !k.IsFitted() {
		return errors.NewNotFittedError("KNeighborsClassifier", method)
	}
	_, c := X.Dims()
	return k.state.RequireFeatures("KNeighborsClassifier."+method, c)
}

// PredictProba returns the (weighted) vote fraction of each class.
func (k *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := k.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, len(k.classes_), nil)
	parallel.ParallelizeWithThreshold(r, 32, k.nJobs, func(start, end int) {
		row := make([]float64, k.nFeatures)
		v := make([]float64, len(k.classes_))
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			k.votes(row, v)
			out.SetRow(i, v)
		}
	})
	return out, nil
}

// Predict returns the class with the most votes.
func (k *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := k.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ProbaLabels(proba, k.classes_), nil
}

// Score returns the mean accuracy on (X, y).
func (k *KNeighborsClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := k.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// GetParams returns the hyperparameters.
func (k *KNeighborsClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": k.nNeighbors,
		"weights":     k.weights,
		"n_jobs":      k.nJobs,
	}
}

// SetParams sets hyperparameters by name.
func (k *KNeighborsClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_neighbors":
			k.nNeighbors, err = model.ParamInt(key, value)
		case "weights":
			k.weights, err = model.ParamString(key, value)
		case "n_jobs":
			k.nJobs, err = model.ParamInt(key, value)
		default:
			return model.UnknownParam("KNeighborsClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (k *KNeighborsClassifier) String() string {
	return fmt.Sprintf("KNeighborsClassifier(n_neighbors=%d, weights=%s)", k.nNeighbors, k.weights)
}

type knnSnapshot struct {
	State      model.ModelState
	NNeighbors int
	Weights    string
	NJobs      int
	Rows       [][]float64
	YIdx       []int
	Classes    []float64
	NFeatures  int
}

// GobEncode implements gob.GobEncoder.
func (k *KNeighborsClassifier) GobEncode() ([]byte, error) {
	snap := knnSnapshot{
		NNeighbors: k.nNeighbors,
		Weights:    k.weights,
		NJobs:      k.nJobs,
		Rows:       k.rows_,
		YIdx:       k.yIdx_,
		Classes:    k.classes_,
		NFeatures:  k.nFeatures,
	}
	if k.state != nil {
		snap.State = k.state.Snapshot()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode KNeighborsClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (k *KNeighborsClassifier) GobDecode(data []byte) error {
	var snap knnSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode KNeighborsClassifier")
	}
	*k = KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: snap.NNeighbors,
		weights:    snap.Weights,
		nJobs:      snap.NJobs,
		rows_:      snap.Rows,
		yIdx_:      snap.YIdx,
		classes_:   snap.Classes,
		nFeatures:  snap.NFeatures,
	}
	k.state.Restore(snap.State)
	return nil
}
