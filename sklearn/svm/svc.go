// Package svm provides a binary support vector classifier trained with SMO,
// with optional Platt-scaled probability estimates.
package svm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/core/parallel"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/model_selection"
)

// plattFolds is the number of internal folds used to collect decision values
// for the probability sigmoid.
const plattFolds = 5

// SVC is a binary C-support vector classifier.
//
// classes_[1] is the positive side of the decision function. Predict uses
// the sign of the decision function; PredictProba uses the sigmoid fitted on
// cross-validated decision values, so the two can disagree near the margin.
type SVC struct {
	state *model.StateManager

	C           float64
	kernel      string // "rbf" or "linear"
	gamma       string // "scale", "auto" or "" when gammaValue is set
	gammaValue  float64
	probability bool
	tol         float64
	maxIter     int // -1 means no limit
	randomState int64

	kern       kernelFunc
	support_   [][]float64
	dualCoef_  []float64 // alpha_i * y_i for every support vector
	rho_       float64
	probA_     float64
	probB_     float64
	classes_   []float64
	nFeatures_ int
	nIter_     int
}

// Option configures an SVC.
type Option func(*SVC)

// NewSVC returns an RBF SVC with C=1, gamma="scale" and no probability
// estimates.
func NewSVC(opts ...Option) *SVC {
	s := &SVC{
		state:       model.NewStateManager(),
		C:           1.0,
		kernel:      "rbf",
		gamma:       "scale",
		tol:         1e-3,
		maxIter:     -1,
		randomState: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithC sets the penalty parameter.
func WithC(c float64) Option { return func(s *SVC) { s.C = c } }

// WithKernel sets the kernel: "rbf" or "linear".
func WithKernel(kernel string) Option { return func(s *SVC) { s.kernel = kernel } }

// WithGamma sets a fixed RBF coefficient.
func WithGamma(gamma float64) Option {
	return func(s *SVC) {
		s.gamma = ""
		s.gammaValue = gamma
	}
}

// WithGammaMode sets the RBF coefficient rule: "scale" or "auto".
func WithGammaMode(mode string) Option { return func(s *SVC) { s.gamma = mode } }

// WithProbability enables Platt-scaled PredictProba.
func WithProbability(enabled bool) Option { return func(s *SVC) { s.probability = enabled } }

// WithTol sets the KKT tolerance of the solver.
func WithTol(tol float64) Option { return func(s *SVC) { s.tol = tol } }

// WithMaxIter bounds solver iterations; -1 means no limit.
func WithMaxIter(n int) Option { return func(s *SVC) { s.maxIter = n } }

// WithRandomState seeds the folds used for probability calibration.
func WithRandomState(seed int64) Option { return func(s *SVC) { s.randomState = seed } }

// IsFitted reports whether Fit has completed.
func (s *SVC) IsFitted() bool { return s.state != nil && s.state.IsFitted() }

// Classes returns the two class labels in ascending order.
func (s *SVC) Classes() []float64 { return s.classes_ }

// NSupport returns the number of support vectors.
func (s *SVC) NSupport() int { return len(s.support_) }

// HasProbability reports whether PredictProba is available.
func (s *SVC) HasProbability() bool { return s.probability }

// Gamma returns the kernel coefficient used by the last Fit.
func (s *SVC) Gamma() float64 { return s.kern.Gamma }

func (s *SVC) validate() error {
	if s.C <= 0 {
		return errors.NewValidationError("C", "must be positive", s.C)
	}
	if s.tol <= 0 {
		return errors.NewValidationError("tol", "must be positive", s.tol)
	}
	switch s.kernel {
	case "rbf", "linear":
	default:
		return errors.NewValidationError("kernel", "must be 'rbf' or 'linear'", s.kernel)
	}
	switch s.gamma {
	case "scale", "auto":
	case "":
		if s.gammaValue <= 0 {
			return errors.NewValidationError("gamma", "must be positive", s.gammaValue)
		}
	default:
		return errors.NewValidationError("gamma", "must be 'scale', 'auto' or a positive number", s.gamma)
	}
	return nil
}

func (s *SVC) resolveGamma(rows [][]float64, nFeatures int) float64 {
	switch s.gamma {
	case "auto":
		return 1 / float64(nFeatures)
	case "scale":
		all := make([]float64, 0, len(rows)*nFeatures)
		for _, r := range rows {
			all = append(all, r...)
		}
		v := stat.PopVariance(all, nil)
		if v == 0 {
			return 1
		}
		return 1 / (float64(nFeatures) * v)
	}
	return s.gammaValue
}

func (s *SVC) iterLimit(n int) int {
	if s.maxIter > 0 {
		return s.maxIter
	}
	return max(10_000_000, 100*n)
}

// Fit trains the classifier. y must contain exactly two classes.
func (s *SVC) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("SVC.Fit", X, y)
	if err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	if s.state == nil {
		s.state = model.NewStateManager()
	}
	s.state.Reset()

	s.classes_ = model.ClassLabels(y)
	if len(s.classes_) != 2 {
		return errors.NewValueError("SVC.Fit", fmt.Sprintf("only binary targets are supported, got %d classes", len(s.classes_)))
	}
	yIdx, err := model.LabelIndices(y, s.classes_)
	if err != nil {
		return err
	}
	signs := make([]float64, nSamples)
	for i, k := range yIdx {
		signs[i] = float64(2*k - 1)
	}

	rows := model.Rows(X)
	s.kern = kernelFunc{Kind: s.kernel, Gamma: s.resolveGamma(rows, nFeatures)}
	K := s.kern.gram(rows)

	sol := solveDual(K, signs, s.C, s.tol, s.iterLimit(nSamples))
	if !sol.converged {
		errors.Warn(errors.NewConvergenceWarning("SVC", sol.iter, "solver stopped at max_iter"))
	}
	s.nIter_ = sol.iter
	s.rho_ = sol.rho
	s.support_ = s.support_[:0]
	s.dualCoef_ = s.dualCoef_[:0]
	for i, a := range sol.alpha {
		if a > 0 {
			s.support_ = append(s.support_, rows[i])
			s.dualCoef_ = append(s.dualCoef_, a*signs[i])
		}
	}
	s.nFeatures_ = nFeatures

	if s.probability {
		dec, err := s.crossValDecision(rows, K, yIdx, signs)
		if err != nil {
			return err
		}
		s.probA_, s.probB_ = fitSigmoid(dec, signs)
	}

	s.state.SetDimensions(nFeatures, nSamples)
	s.state.SetFitted()
	return nil
}

// crossValDecision returns out-of-fold decision values for every training
// sample. When a class is too small for the internal folds, in-sample values
// are used instead.
func (s *SVC) crossValDecision(rows [][]float64, K []float64, yIdx []int, signs []float64) ([]float64, error) {
	n := len(signs)
	labels := mat.NewVecDense(n, nil)
	for i, k := range yIdx {
		labels.SetVec(i, float64(k))
	}

	seed := s.randomState
	if seed < 0 {
		seed = rand.Int64N(math.MaxInt32)
	}
	folds, err := model_selection.NewStratifiedKFold(plattFolds, true, int(seed)).Split(labels)
	if err != nil {
		dec := make([]float64, n)
		for t, row := range rows {
			dec[t] = s.decision(row)
		}
		return dec, nil
	}

	dec := make([]float64, n)
	err = parallel.ForEach(len(folds), 0, func(f int) error {
		train, test := folds[f].TrainIndices, folds[f].TestIndices
		m := len(train)
		subK := make([]float64, m*m)
		subY := make([]float64, m)
		for a, i := range train {
			subY[a] = signs[i]
			for b, j := range train {
				subK[a*m+b] = K[i*n+j]
			}
		}
		sol := solveDual(subK, subY, s.C, s.tol, s.iterLimit(m))
		for _, t := range test {
			v := -sol.rho
			for a, i := range train {
				if sol.alpha[a] > 0 {
					v += sol.alpha[a] * subY[a] * K[t*n+i]
				}
			}
			dec[t] = v
		}
		return nil
	})
	return dec, err
}

func (s *SVC) checkPredict(method string, X mat.Matrix) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError("SVC", method)
	}
	_, c := X.Dims()
	return s.state.RequireFeatures("SVC."+method, c)
}

func (s *SVC) decision(x []float64) float64 {
	v := -s.rho_
	for j, sv := range s.support_ {
		v += s.dualCoef_[j] * s.kern.eval(sv, x)
	}
	return v
}

// DecisionFunction returns the signed distance of each sample to the
// separating surface; positive values favour classes_[1].
func (s *SVC) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	if err := s.checkPredict("DecisionFunction", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	row := make([]float64, s.nFeatures_)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetVec(i, s.decision(row))
	}
	return out, nil
}

// Predict returns classes_[1] where the decision function is positive.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(dec.Len(), 1, nil)
	for i := 0; i < dec.Len(); i++ {
		label := s.classes_[0]
		if dec.AtVec(i) > 0 {
			label = s.classes_[1]
		}
		out.Set(i, 0, label)
	}
	return out, nil
}

// PredictProba returns [P(classes_[0]), P(classes_[1])] per sample. It
// requires the model to be fitted with probability enabled.
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !s.probability {
		return nil, errors.NewModelError("SVC.PredictProba", "configuration",
			errors.New("probability estimates are disabled; fit with probability=true"))
	}
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(dec.Len(), 2, nil)
	for i := 0; i < dec.Len(); i++ {
		p := sigmoidProba(dec.AtVec(i), s.probA_, s.probB_)
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Score returns the mean accuracy on (X, y).
func (s *SVC) Score(X, y mat.Matrix) float64 {
	pred, err := s.Predict(X)
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
func (s *SVC) GetParams() map[string]interface{} {
	var gamma interface{} = s.gamma
	if s.gamma == "" {
		gamma = s.gammaValue
	}
	return map[string]interface{}{
		"C":            s.C,
		"kernel":       s.kernel,
		"gamma":        gamma,
		"probability":  s.probability,
		"tol":          s.tol,
		"max_iter":     s.maxIter,
		"random_state": s.randomState,
	}
}

// SetParams sets hyperparameters by name. gamma accepts "scale", "auto" or a
// number.
func (s *SVC) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "C":
			s.C, err = model.ParamFloat(key, value)
		case "kernel":
			s.kernel, err = model.ParamString(key, value)
		case "gamma":
			if mode, ok := value.(string); ok {
				s.gamma = mode
				break
			}
			s.gamma = ""
			s.gammaValue, err = model.ParamFloat(key, value)
		case "probability":
			s.probability, err = model.ParamBool(key, value)
		case "tol":
			s.tol, err = model.ParamFloat(key, value)
		case "max_iter":
			s.maxIter, err = model.ParamInt(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			s.randomState = int64(seed)
		default:
			return model.UnknownParam("SVC", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SVC) String() string {
	gamma := s.gamma
	if gamma == "" {
		gamma = fmt.Sprintf("%g", s.gammaValue)
	}
	return fmt.Sprintf("SVC(C=%g, kernel=%s, gamma=%s, probability=%t)", s.C, s.kernel, gamma, s.probability)
}

type svcSnapshot struct {
	State       model.ModelState
	C           float64
	Kernel      string
	GammaMode   string
	GammaValue  float64
	Probability bool
	Tol         float64
	MaxIter     int
	RandomState int64
	Kern        kernelFunc
	Support     [][]float64
	DualCoef    []float64
	Rho         float64
	ProbA       float64
	ProbB       float64
	Classes     []float64
	NFeatures   int
	NIter       int
}

// GobEncode implements gob.GobEncoder.
func (s *SVC) GobEncode() ([]byte, error) {
	snap := svcSnapshot{
		C:           s.C,
		Kernel:      s.kernel,
		GammaMode:   s.gamma,
		GammaValue:  s.gammaValue,
		Probability: s.probability,
		Tol:         s.tol,
		MaxIter:     s.maxIter,
		RandomState: s.randomState,
		Kern:        s.kern,
		Support:     s.support_,
		DualCoef:    s.dualCoef_,
		Rho:         s.rho_,
		ProbA:       s.probA_,
		ProbB:       s.probB_,
		Classes:     s.classes_,
		NFeatures:   s.nFeatures_,
		NIter:       s.nIter_,
	}
	if s.state != nil {
		snap.State = s.state.Snapshot()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode SVC")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (s *SVC) GobDecode(data []byte) error {
	var snap svcSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode SVC")
	}
	*s = SVC{
		state:       model.NewStateManager(),
		C:           snap.C,
		kernel:      snap.Kernel,
		gamma:       snap.GammaMode,
		gammaValue:  snap.GammaValue,
		probability: snap.Probability,
		tol:         snap.Tol,
		maxIter:     snap.MaxIter,
		randomState: snap.RandomState,
		kern:        snap.Kern,
		support_:    snap.Support,
		dualCoef_:   snap.DualCoef,
		rho_:        snap.Rho,
		probA_:      snap.ProbA,
		probB_:      snap.ProbB,
		classes_:    snap.Classes,
		nFeatures_:  snap.NFeatures,
		nIter_:      snap.NIter,
	}
	s.state.Restore(snap.State)
	return nil
}
