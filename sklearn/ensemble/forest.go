// Package ensemble provides the random forest and gradient boosting
// candidates built on the CART trees of the tree package.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/tree"
)

// RandomForestClassifier averages the class fractions of bootstrapped
// decision trees that each consider a random feature subset per split.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     int64
	nJobs           int // 0 means all CPUs

	estimators_  []*tree.DecisionTreeClassifier
	classes_     []float64
	nFeatures_   int
	importances_ []float64
}

// ForestOption configures a RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest with scikit-learn defaults:
// 100 trees, gini, sqrt features per split, bootstrap sampling.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithForestMaxDepth sets the per-tree depth limit; 0 means unlimited.
func WithForestMaxDepth(d int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithForestMinSamplesSplit sets min_samples_split for every tree.
func WithForestMinSamplesSplit(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithForestMinSamplesLeaf sets min_samples_leaf for every tree.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithForestMaxFeatures sets the per-split feature subset mode.
func WithForestMaxFeatures(mode string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = mode }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) ForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithForestRandomState seeds tree construction.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs bounds the number of trees grown concurrently.
func WithNJobs(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state != nil && rf.state.IsFitted()
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier { return rf.estimators_ }

// FeatureImportances returns the mean importance across trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), rf.importances_...)
}

// masterRand returns the generator that hands out per-tree seeds. A negative
// random_state draws a fresh seed.
func masterRand(seed int64) *rand.Rand {
	if seed < 0 {
		seed = rand.Int64()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// Fit grows nEstimators trees concurrently. Seeds are drawn sequentially
// before any tree starts so the forest does not depend on scheduling.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	rf.state.Reset()

	classes := model.ClassLabels(y)
	yIdx, err := model.LabelIndices(y, classes)
	if err != nil {
		return err
	}
	cols := model.Columns(X)

	master := masterRand(rf.randomState)
	seeds := make([]int64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Int64N(math.MaxInt32)
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err = parallel.ForEach(rf.nEstimators, rf.nJobs, func(i int) error {
		sample := make([]int, nSamples)
		if rf.bootstrap {
			r := rand.New(rand.NewPCG(uint64(seeds[i]), 0))
			for k := range sample {
				sample[k] = r.IntN(nSamples)
			}
		} else {
			for k := range sample {
				sample[k] = k
			}
		}
		dt := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(rf.maxFeatures),
			tree.WithRandomState(seeds[i]),
		)
		if err := dt.FitIndices(cols, yIdx, classes, sample); err != nil {
			return err
		}
		trees[i] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.estimators_ = trees
	rf.classes_ = classes
	rf.nFeatures_ = nFeatures
	rf.importances_ = make([]float64, nFeatures)
	for _, dt := range trees {
		floats.Add(rf.importances_, dt.GetFeatureImportances())
	}
	floats.Scale(1/float64(len(trees)), rf.importances_)

	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()
	return nil
}

// PredictProba averages the leaf class fractions of every tree.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}
	r, c := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}

	probas := mat.NewDense(r, len(rf.classes_), nil)
	row := make([]float64, c)
	acc := make([]float64, len(rf.classes_))
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		clear(acc)
		for _, dt := range rf.estimators_ {
			floats.Add(acc, dt.LeafValue(row))
		}
		floats.Scale(1/float64(len(rf.estimators_)), acc)
		probas.SetRow(i, acc)
	}
	return probas, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ProbaLabels(probas, rf.classes_), nil
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         model.OptionalInt(rf.maxDepth),
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets the hyperparameters.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			rf.nEstimators, err = model.ParamInt(key, value)
		case "criterion":
			rf.criterion, err = model.ParamString(key, value)
		case "max_depth":
			rf.maxDepth, err = model.ParamOptionalInt(key, value)
		case "min_samples_split":
			rf.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			rf.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			rf.maxFeatures, err = model.ParamString(key, value)
		case "bootstrap":
			rf.bootstrap, err = model.ParamBool(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			rf.randomState = int64(seed)
		case "n_jobs":
			rf.nJobs, err = model.ParamInt(key, value)
		default:
			return model.UnknownParam("RandomForestClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_depth=%v, random_state=%d)",
		rf.nEstimators, model.OptionalInt(rf.maxDepth), rf.randomState)
}

type forestSnapshot struct {
	State           model.ModelState
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	RandomState     int64
	NJobs           int
	Estimators      []*tree.DecisionTreeClassifier
	Classes         []float64
	NFeatures       int
	Importances     []float64
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	snap := forestSnapshot{
		NEstimators:     rf.nEstimators,
		Criterion:       rf.criterion,
		MaxDepth:        rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit,
		MinSamplesLeaf:  rf.minSamplesLeaf,
		MaxFeatures:     rf.maxFeatures,
		Bootstrap:       rf.bootstrap,
		RandomState:     rf.randomState,
		NJobs:           rf.nJobs,
		Estimators:      rf.estimators_,
		Classes:         rf.classes_,
		NFeatures:       rf.nFeatures_,
		Importances:     rf.importances_,
	}
	if rf.state != nil {
		snap.State = rf.state.Snapshot()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode RandomForestClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var snap forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode RandomForestClassifier")
	}
	*rf = RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     snap.NEstimators,
		criterion:       snap.Criterion,
		maxDepth:        snap.MaxDepth,
		minSamplesSplit: snap.MinSamplesSplit,
		minSamplesLeaf:  snap.MinSamplesLeaf,
		maxFeatures:     snap.MaxFeatures,
		bootstrap:       snap.Bootstrap,
		randomState:     snap.RandomState,
		nJobs:           snap.NJobs,
		estimators_:     snap.Estimators,
		classes_:        snap.Classes,
		nFeatures_:      snap.NFeatures,
		importances_:    snap.Importances,
	}
	rf.state.Restore(snap.State)
	return nil
}
