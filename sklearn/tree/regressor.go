package tree

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// DecisionTreeRegressor is a squared-error CART regressor. Gradient boosting
// fits one per stage and then rewrites its leaf values with SetLeafValue.
type DecisionTreeRegressor struct {
	State *model.StateManager

	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int

	Nodes []Node
}

// NewDecisionTreeRegressor creates a regressor with the given depth limit
func NewDecisionTreeRegressor(maxDepth, minSamplesSplit, minSamplesLeaf int) *DecisionTreeRegressor {
	return &DecisionTreeRegressor{
		State:           model.NewStateManager(),
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  minSamplesLeaf,
	}
}

// IsFitted reports whether Fit has completed.
func (r *DecisionTreeRegressor) IsFitted() bool {
	return r.State != nil && r.State.IsFitted()
}

// FitIndices fits the rows listed in sample. cols is X in column-major order.
func (r *DecisionTreeRegressor) FitIndices(cols [][]float64, y []float64, sample []int) error {
	if len(sample) == 0 || len(cols) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if r.MinSamplesSplit < 2 || r.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples", "split must be >= 2 and leaf >= 1",
			[2]int{r.MinSamplesSplit, r.MinSamplesLeaf})
	}
	if r.State == nil {
		r.State = model.NewStateManager()
	}
	r.State.Reset()

	b := newBuilder(cols, &mseCriterion{y: y}, growParams{
		maxDepth:        r.MaxDepth,
		minSamplesSplit: r.MinSamplesSplit,
		minSamplesLeaf:  r.MinSamplesLeaf,
	}, nil)
	b.build(append([]int(nil), sample...), 0)
	r.Nodes = b.nodes

	r.State.SetDimensions(len(cols), len(sample))
	r.State.SetFitted()
	return nil
}

// Fit trains the regressor on every row of X.
func (r *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	nSamples, _, err := model.CheckXY("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	target := make([]float64, nSamples)
	mat.Col(target, 0, y)
	sample := make([]int, nSamples)
	for i := range sample {
		sample[i] = i
	}
	return r.FitIndices(model.Columns(X), target, sample)
}

// Apply returns the leaf index reached by row x.
func (r *DecisionTreeRegressor) Apply(x []float64) int {
	return descend(r.Nodes, x)
}

// SetLeafValue overrides the prediction stored in a leaf.
func (r *DecisionTreeRegressor) SetLeafValue(leaf int, v float64) {
	r.Nodes[leaf].Value = []float64{v}
}

// PredictRow returns the prediction for a single row.
func (r *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	return r.Nodes[descend(r.Nodes, x)].Value[0]
}

// Predict returns an n x 1 matrix of predictions.
func (r *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	n, c := X.Dims()
	if err := r.State.RequireFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(n, 1, nil)
	row := make([]float64, c)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, r.PredictRow(row))
	}
	return out, nil
}

// NLeaves returns the number of leaves.
func (r *DecisionTreeRegressor) NLeaves() int { return countLeaves(r.Nodes) }
