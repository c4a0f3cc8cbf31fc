package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// DecisionTreeClassifier is a CART classifier. Compatible with
// scikit-learn's DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "", "sqrt" or "log2"
	randomState     int64

	// Model parameters
	nodes        []Node
	classes_     []float64
	nClasses_    int
	nFeatures_   int
	importances_ []float64
	depth_       int
}

// DecisionTreeOption is a functional option for DecisionTreeClassifier
type DecisionTreeOption func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier
func NewDecisionTreeClassifier(opts ...DecisionTreeOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the split quality measure
func WithCriterion(criterion string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth sets the maximum depth; 0 means unlimited
func WithMaxDepth(depth int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples needed to split a node
func WithMinSamplesSplit(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples in each leaf
func WithMinSamplesLeaf(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features each split examines: "sqrt",
// "log2", or "" for all of them
func WithMaxFeatures(mode string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = mode }
}

// WithRandomState seeds the feature subsampling
func WithRandomState(seed int64) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state != nil && dt.state.IsFitted()
}

// Classes returns the sorted class labels.
func (dt *DecisionTreeClassifier) Classes() []float64 { return dt.classes_ }

func (dt *DecisionTreeClassifier) validate() error {
	switch dt.criterion {
	case "gini", "entropy":
	default:
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	if dt.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be positive or unset", dt.maxDepth)
	}
	if _, err := resolveMaxFeatures(dt.maxFeatures, 1); err != nil {
		return err
	}
	return nil
}

// resolveMaxFeatures converts the max_features mode to a count.
func resolveMaxFeatures(mode string, nFeatures int) (int, error) {
	switch mode {
	case "", "none":
		return 0, nil
	case "sqrt":
		return max(1, int(math.Sqrt(float64(nFeatures)))), nil
	case "log2":
		return max(1, int(math.Log2(float64(nFeatures)))), nil
	}
	return 0, errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or empty", mode)
}

// Fit trains the tree on every row of X
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	nSamples, _, err := model.CheckXY("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	classes := model.ClassLabels(y)
	yIdx, err := model.LabelIndices(y, classes)
	if err != nil {
		return err
	}
	sample := make([]int, nSamples)
	for i := range sample {
		sample[i] = i
	}
	return dt.FitIndices(model.Columns(X), yIdx, classes, sample)
}

// FitIndices trains on the rows listed in sample, which may repeat rows
// (bootstrap). cols is X in column-major order and yIdx holds positions in
// classes, so every tree of an ensemble shares one class layout.
func (dt *DecisionTreeClassifier) FitIndices(cols [][]float64, yIdx []int, classes []float64, sample []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	if len(sample) == 0 || len(cols) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if dt.state == nil {
		dt.state = model.NewStateManager()
	}
	dt.state.Reset()

	nFeatures := len(cols)
	k, _ := resolveMaxFeatures(dt.maxFeatures, nFeatures)
	seed := max(dt.randomState, 0)

	b := newBuilder(cols, newClassCriterion(yIdx, len(classes), dt.criterion == "entropy"), growParams{
		maxDepth:        dt.maxDepth,
		minSamplesSplit: dt.minSamplesSplit,
		minSamplesLeaf:  dt.minSamplesLeaf,
		maxFeatures:     k,
	}, newRand(seed))
	b.build(append([]int(nil), sample...), 0)

	dt.nodes = b.nodes
	dt.classes_ = append([]float64(nil), classes...)
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = nFeatures
	dt.importances_ = b.normalizedImportances()
	dt.depth_ = b.depth

	dt.state.SetDimensions(nFeatures, len(sample))
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) checkPredict(method string, X mat.Matrix) error {
	if !dt.IsFitted() {
		return errors.NewNotFittedError("DecisionTreeClassifier", method)
	}
	_, c := X.Dims()
	return dt.state.RequireFeatures("DecisionTreeClassifier."+method, c)
}

// PredictProba returns the class fractions of the leaf each sample reaches
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	probas := mat.NewDense(r, dt.nClasses_, nil)
	row := make([]float64, dt.nFeatures_)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		probas.SetRow(i, dt.nodes[descend(dt.nodes, row)].Value)
	}
	return probas, nil
}

// LeafValue returns the class fractions for a single row.
func (dt *DecisionTreeClassifier) LeafValue(x []float64) []float64 {
	return dt.nodes[descend(dt.nodes, x)].Value
}

// Predict returns the majority class of the leaf each sample reaches
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ProbaLabels(probas, dt.classes_), nil
}

// Score returns the mean accuracy on the given data
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// GetDepth returns the depth of the fitted tree; a lone root has depth 0
func (dt *DecisionTreeClassifier) GetDepth() int { return dt.depth_ }

// GetNLeaves returns the number of leaves
func (dt *DecisionTreeClassifier) GetNLeaves() int { return countLeaves(dt.nodes) }

// GetFeatureImportances returns the normalized impurity decrease per feature
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.importances_...)
}

// GetParams returns the hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         model.OptionalInt(dt.maxDepth),
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the hyperparameters
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "criterion":
			dt.criterion, err = model.ParamString(key, value)
		case "max_depth":
			dt.maxDepth, err = model.ParamOptionalInt(key, value)
		case "min_samples_split":
			dt.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			dt.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			dt.maxFeatures, err = model.ParamString(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			dt.randomState = int64(seed)
		default:
			return model.UnknownParam("DecisionTreeClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (dt *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%v, min_samples_split=%d, min_samples_leaf=%d)",
		dt.criterion, model.OptionalInt(dt.maxDepth), dt.minSamplesSplit, dt.minSamplesLeaf)
}

type classifierSnapshot struct {
	State           model.ModelState
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	RandomState     int64
	Nodes           []Node
	Classes         []float64
	NFeatures       int
	Importances     []float64
	Depth           int
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	snap := classifierSnapshot{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		Nodes:           dt.nodes,
		Classes:         dt.classes_,
		NFeatures:       dt.nFeatures_,
		Importances:     dt.importances_,
		Depth:           dt.depth_,
	}
	if dt.state != nil {
		snap.State = dt.state.Snapshot()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode DecisionTreeClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var snap classifierSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode DecisionTreeClassifier")
	}
	*dt = DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       snap.Criterion,
		maxDepth:        snap.MaxDepth,
		minSamplesSplit: snap.MinSamplesSplit,
		minSamplesLeaf:  snap.MinSamplesLeaf,
		maxFeatures:     snap.MaxFeatures,
		randomState:     snap.RandomState,
		nodes:           snap.Nodes,
		classes_:        snap.Classes,
		nClasses_:       len(snap.Classes),
		nFeatures_:      snap.NFeatures,
		importances_:    snap.Importances,
		depth_:          snap.Depth,
	}
	dt.state.Restore(snap.State)
	return nil
}
