package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/tree"
)

// GradientBoostingClassifier is binary gradient boosting on the log-loss.
// Each stage fits a regression tree to the residuals y - p and replaces its
// leaf values with one Newton step.
type GradientBoostingClassifier struct {
	state *model.StateManager

	nEstimators     int
	learningRate    float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	subsample       float64
	randomState     int64

	init_       float64
	estimators_ []*tree.DecisionTreeRegressor
	classes_    []float64
	nFeatures_  int
	trainLoss_  []float64
}

// BoostingOption configures a GradientBoostingClassifier.
type BoostingOption func(*GradientBoostingClassifier)

// NewGradientBoostingClassifier creates a booster with scikit-learn
// defaults: 100 stages, learning rate 0.1, depth 3.
func NewGradientBoostingClassifier(opts ...BoostingOption) *GradientBoostingClassifier {
	gb := &GradientBoostingClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		learningRate:    0.1,
		maxDepth:        3,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		subsample:       1.0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// WithGBNEstimators sets the number of boosting stages.
func WithGBNEstimators(n int) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.nEstimators = n }
}

// WithLearningRate sets the shrinkage applied to each stage.
func WithLearningRate(lr float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.learningRate = lr }
}

// WithGBMaxDepth sets the depth of each stage tree.
func WithGBMaxDepth(d int) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.maxDepth = d }
}

// WithSubsample sets the fraction of rows drawn without replacement per stage.
func WithSubsample(f float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.subsample = f }
}

// WithGBRandomState seeds row subsampling.
func WithGBRandomState(seed int64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.randomState = seed }
}

// IsFitted reports whether Fit has completed.
func (gb *GradientBoostingClassifier) IsFitted() bool {
	return gb.state != nil && gb.state.IsFitted()
}

// TrainLoss returns the mean training log-loss after each stage.
func (gb *GradientBoostingClassifier) TrainLoss() []float64 { return gb.trainLoss_ }

func (gb *GradientBoostingClassifier) validate() error {
	if gb.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", gb.nEstimators)
	}
	if gb.learningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", gb.learningRate)
	}
	if gb.subsample <= 0 || gb.subsample > 1 {
		return errors.NewValidationError("subsample", "must be in (0, 1]", gb.subsample)
	}
	return nil
}

// Fit runs nEstimators boosting stages.
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("GradientBoostingClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if err := gb.validate(); err != nil {
		return err
	}
	classes := model.ClassLabels(y)
	if len(classes) != 2 {
		return errors.NewValueError("GradientBoostingClassifier.Fit",
			fmt.Sprintf("binary targets only, got %d classes", len(classes)))
	}
	yIdx, err := model.LabelIndices(y, classes)
	if err != nil {
		return err
	}
	if gb.state == nil {
		gb.state = model.NewStateManager()
	}
	gb.state.Reset()

	target := make([]float64, nSamples)
	for i, k := range yIdx {
		target[i] = float64(k)
	}
	cols := model.Columns(X)
	rows := model.Rows(X)

	prior := errors.ClipValue(stat.Mean(target, nil), 1e-15, 1-1e-15)
	gb.init_ = math.Log(prior / (1 - prior))

	seed := gb.randomState
	if seed < 0 {
		seed = rand.Int64()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	raw := make([]float64, nSamples)
	for i := range raw {
		raw[i] = gb.init_
	}
	prob := make([]float64, nSamples)
	residual := make([]float64, nSamples)
	nSub := max(1, int(gb.subsample*float64(nSamples)))
	all := make([]int, nSamples)
	for i := range all {
		all[i] = i
	}

	gb.estimators_ = make([]*tree.DecisionTreeRegressor, 0, gb.nEstimators)
	gb.trainLoss_ = make([]float64, 0, gb.nEstimators)
	for m := 0; m < gb.nEstimators; m++ {
		for i := range raw {
			prob[i] = errors.Sigmoid(raw[i])
			residual[i] = target[i] - prob[i]
		}

		sample := all
		if nSub < nSamples {
			sample = rng.Perm(nSamples)[:nSub]
		}

		reg := tree.NewDecisionTreeRegressor(gb.maxDepth, gb.minSamplesSplit, gb.minSamplesLeaf)
		if err := reg.FitIndices(cols, residual, sample); err != nil {
			return errors.Wrapf(err, "boosting stage %d", m)
		}

		num := make(map[int]float64)
		den := make(map[int]float64)
		for _, i := range sample {
			leaf := reg.Apply(rows[i])
			num[leaf] += residual[i]
			den[leaf] += prob[i] * (1 - prob[i])
		}
		for leaf, n := range num {
			v := 0.0
			if d := den[leaf]; d > 1e-150 {
				v = n / d
			}
			reg.SetLeafValue(leaf, v)
		}

		for i := range raw {
			raw[i] += gb.learningRate * reg.PredictRow(rows[i])
		}
		gb.estimators_ = append(gb.estimators_, reg)
		gb.trainLoss_ = append(gb.trainLoss_, logLoss(target, raw))
	}

	if err := errors.CheckNumericalStability("GradientBoostingClassifier.Fit", raw, gb.nEstimators); err != nil {
		return err
	}

	gb.classes_ = classes
	gb.nFeatures_ = nFeatures
	gb.state.SetDimensions(nFeatures, nSamples)
	gb.state.SetFitted()
	return nil
}

func logLoss(target, raw []float64) float64 {
	total := 0.0
	for i, f := range raw {
		// log(1+exp(f)) - y*f
		if f > 0 {
			total += f + math.Log1p(math.Exp(-f)) - target[i]*f
		} else {
			total += math.Log1p(math.Exp(f)) - target[i]*f
		}
	}
	return total / float64(len(raw))
}

// DecisionFunction returns the raw log-odds score of the positive class.
func (gb *GradientBoostingClassifier) DecisionFunction(X mat.Matrix) ([]float64, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingClassifier", "DecisionFunction")
	}
	r, c := X.Dims()
	if err := gb.state.RequireFeatures("GradientBoostingClassifier.DecisionFunction", c); err != nil {
		return nil, err
	}
	out := make([]float64, r)
	row := make([]float64, c)
	for i := range out {
		mat.Row(row, i, X)
		f := gb.init_
		for _, reg := range gb.estimators_ {
			f += gb.learningRate * reg.PredictRow(row)
		}
		out[i] = f
	}
	return out, nil
}

// PredictProba returns [P(classes[0]), P(classes[1])] per row.
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := gb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	probas := mat.NewDense(len(scores), 2, nil)
	for i, f := range scores {
		p := errors.Sigmoid(f)
		probas.Set(i, 0, 1-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

// Predict returns classes[1] where the positive probability exceeds 0.5.
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ProbaLabels(probas, gb.classes_), nil
}

// GetParams returns the hyperparameters.
func (gb *GradientBoostingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      gb.nEstimators,
		"learning_rate":     gb.learningRate,
		"max_depth":         model.OptionalInt(gb.maxDepth),
		"min_samples_split": gb.minSamplesSplit,
		"min_samples_leaf":  gb.minSamplesLeaf,
		"subsample":         gb.subsample,
		"random_state":      gb.randomState,
	}
}

// SetParams sets the hyperparameters.
func (gb *GradientBoostingClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			gb.nEstimators, err = model.ParamInt(key, value)
		case "learning_rate":
			gb.learningRate, err = model.ParamFloat(key, value)
		case "max_depth":
			gb.maxDepth, err = model.ParamOptionalInt(key, value)
		case "min_samples_split":
			gb.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			gb.minSamplesLeaf, err = model.ParamInt(key, value)
		case "subsample":
			gb.subsample, err = model.ParamFloat(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			gb.randomState = int64(seed)
		default:
			return model.UnknownParam("GradientBoostingClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (gb *GradientBoostingClassifier) String() string {
	return fmt.Sprintf("GradientBoostingClassifier(n_estimators=%d, learning_rate=%g, max_depth=%v)",
		gb.nEstimators, gb.learningRate, model.OptionalInt(gb.maxDepth))
}

type boostingSnapshot struct {
	State           model.ModelState
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	RandomState     int64
	Init            float64
	Estimators      []*tree.DecisionTreeRegressor
	Classes         []float64
	NFeatures       int
	TrainLoss       []float64
}

// GobEncode implements gob.GobEncoder.
func (gb *GradientBoostingClassifier) GobEncode() ([]byte, error) {
	snap := boostingSnapshot{
		NEstimators:     gb.nEstimators,
		LearningRate:    gb.learningRate,
		MaxDepth:        gb.maxDepth,
		MinSamplesSplit: gb.minSamplesSplit,
		MinSamplesLeaf:  gb.minSamplesLeaf,
		Subsample:       gb.subsample,
		RandomState:     gb.randomState,
		Init:            gb.init_,
		Estimators:      gb.estimators_,
		Classes:         gb.classes_,
		NFeatures:       gb.nFeatures_,
		TrainLoss:       gb.trainLoss_,
	}
	if gb.state != nil {
		snap.State = gb.state.Snapshot()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode GradientBoostingClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (gb *GradientBoostingClassifier) GobDecode(data []byte) error {
	var snap boostingSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode GradientBoostingClassifier")
	}
	*gb = GradientBoostingClassifier{
		state:           model.NewStateManager(),
		nEstimators:     snap.NEstimators,
		learningRate:    snap.LearningRate,
		maxDepth:        snap.MaxDepth,
		minSamplesSplit: snap.MinSamplesSplit,
		minSamplesLeaf:  snap.MinSamplesLeaf,
		subsample:       snap.Subsample,
		randomState:     snap.RandomState,
		init_:           snap.Init,
		estimators_:     snap.Estimators,
		classes_:        snap.Classes,
		nFeatures_:      snap.NFeatures,
		trainLoss_:      snap.TrainLoss,
	}
	gb.state.Restore(snap.State)
	return nil
}
