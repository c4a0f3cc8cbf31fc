// Package linear_model provides the logistic regression candidate.
package linear_model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// LogisticRegression implements L2-regularized logistic regression.
// Two classes use the sigmoid link; more classes use the multinomial
// (softmax) loss. Compatible with scikit-learn's LogisticRegression.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	solver       string // "lbfgs" or "gd"
	maxIter      int
	tol          float64
	randomState  int64

	// Model parameters
	coef_      [][]float64 // 1 x n_features for binary, n_classes x n_features otherwise
	intercept_ []float64
	classes_   []float64
	nClasses_  int
	nFeatures_ int
	nIter_     int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		solver:       "lbfgs",
		maxIter:      100,
		tol:          1e-4,
		randomState:  -1,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed. Both solvers are deterministic;
// the seed is kept for parameter parity.
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

// IsFitted reports whether Fit has completed.
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state != nil && lr.state.IsFitted()
}

// Classes returns the sorted class labels seen in Fit.
func (lr *LogisticRegression) Classes() []float64 { return lr.classes_ }

// Coef returns the fitted coefficients.
func (lr *LogisticRegression) Coef() [][]float64 { return lr.coef_ }

// Intercept returns the fitted intercepts.
func (lr *LogisticRegression) Intercept() []float64 { return lr.intercept_ }

// NIter returns the number of solver iterations used by the last Fit.
func (lr *LogisticRegression) NIter() int { return lr.nIter_ }

func (lr *LogisticRegression) validate() error {
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	}
	switch lr.penalty {
	case "l2", "none":
	default:
		return errors.NewValidationError("penalty", "only 'l2' and 'none' are supported", lr.penalty)
	}
	switch lr.solver {
	case "lbfgs", "gd":
	default:
		return errors.NewValidationError("solver", "must be 'lbfgs' or 'gd'", lr.solver)
	}
	return nil
}

// Fit trains the model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures, err := model.CheckXY("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}
	if err := lr.validate(); err != nil {
		return err
	}
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	lr.state.Reset()

	lr.classes_ = model.ClassLabels(y)
	lr.nClasses_ = len(lr.classes_)
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit", "needs samples of at least two classes")
	}
	yIdx, err := model.LabelIndices(y, lr.classes_)
	if err != nil {
		return err
	}
	lr.nFeatures_ = nFeatures

	obj := &logisticObjective{
		rows:         model.Rows(X),
		y:            yIdx,
		nOut:         lr.nClasses_,
		nFeatures:    nFeatures,
		fitIntercept: lr.fitIntercept,
	}
	if lr.nClasses_ == 2 {
		obj.nOut = 1
	}
	if lr.penalty == "l2" {
		obj.lambda = 1.0 / (lr.C * float64(nSamples))
	}

	theta := make([]float64, obj.nOut*(nFeatures+1))
	switch lr.solver {
	case "gd":
		theta, lr.nIter_ = lr.gradientDescent(obj, theta)
	default:
		theta, lr.nIter_, err = lr.lbfgs(obj, theta)
		if err != nil {
			return err
		}
	}
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", theta, lr.nIter_); err != nil {
		return err
	}

	lr.coef_ = make([][]float64, obj.nOut)
	lr.intercept_ = make([]float64, obj.nOut)
	for k := 0; k < obj.nOut; k++ {
		off := k * (nFeatures + 1)
		lr.coef_[k] = append([]float64(nil), theta[off:off+nFeatures]...)
		lr.intercept_[k] = theta[off+nFeatures]
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

func (lr *LogisticRegression) lbfgs(obj *logisticObjective, init []float64) ([]float64, int, error) {
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
	}
	settings := &optimize.Settings{
		MajorIterations:   lr.maxIter,
		GradientThreshold: lr.tol,
	}
	result, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, 0, errors.NewModelError("LogisticRegression.Fit", "lbfgs", err)
	}
	iters := result.Stats.MajorIterations
	if err != nil || result.Status == optimize.IterationLimit {
		msg := "Increase the number of iterations (max_iter) or scale the data."
		if err != nil {
			msg = err.Error()
		}
		errors.Warn(errors.NewConvergenceWarning("lbfgs", iters, msg))
	}
	return result.X, iters, nil
}

// gradientDescent uses a decaying learning rate and stops once the largest
// gradient component falls below tol.
func (lr *LogisticRegression) gradientDescent(obj *logisticObjective, theta []float64) ([]float64, int) {
	grad := make([]float64, len(theta))
	baseLearningRate := 1.0
	iter := 0
	for iter < lr.maxIter {
		obj.gradient(grad, theta)
		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		floats.AddScaled(theta, -learningRate, grad)
		iter++
		if floats.Norm(grad, math.Inf(1)) < lr.tol {
			return theta, iter
		}
	}
	errors.Warn(errors.NewConvergenceWarning("gd", iter, ""))
	return theta, iter
}

// logisticObjective is the mean log-loss plus lambda/2 * ||w||^2. The
// parameter vector holds nOut blocks of [w_0..w_{d-1}, b].
type logisticObjective struct {
	rows         [][]float64
	y            []int
	nOut         int
	nFeatures    int
	lambda       float64
	fitIntercept bool
}

func (o *logisticObjective) scores(theta, x, z []float64) {
	d := o.nFeatures
	for k := 0; k < o.nOut; k++ {
		off := k * (d + 1)
		z[k] = floats.Dot(theta[off:off+d], x)
		if o.fitIntercept {
			z[k] += theta[off+d]
		}
	}
}

func (o *logisticObjective) value(theta []float64) float64 {
	z := make([]float64, o.nOut)
	loss := 0.0
	for i, x := range o.rows {
		o.scores(theta, x, z)
		if o.nOut == 1 {
			loss += softplus(z[0]) - float64(o.y[i])*z[0]
		} else {
			loss += errors.LogSumExp(z) - z[o.y[i]]
		}
	}
	loss /= float64(len(o.rows))

	if o.lambda > 0 {
		d := o.nFeatures
		for k := 0; k < o.nOut; k++ {
			w := theta[k*(d+1) : k*(d+1)+d]
			loss += 0.5 * o.lambda * floats.Dot(w, w)
		}
	}
	return loss
}

func (o *logisticObjective) gradient(grad, theta []float64) {
	d := o.nFeatures
	n := float64(len(o.rows))
	for i := range grad {
		grad[i] = 0
	}
	z := make([]float64, o.nOut)
	for i, x := range o.rows {
		o.scores(theta, x, z)
		if o.nOut == 1 {
			z[0] = errors.Sigmoid(z[0]) - float64(o.y[i])
		} else {
			lse := errors.LogSumExp(z)
			for k := range z {
				z[k] = math.Exp(z[k] - lse)
			}
			z[o.y[i]] -= 1
		}
		for k := 0; k < o.nOut; k++ {
			off := k * (d + 1)
			floats.AddScaled(grad[off:off+d], z[k]/n, x)
			if o.fitIntercept {
				grad[off+d] += z[k] / n
			}
		}
	}
	if o.lambda > 0 {
		for k := 0; k < o.nOut; k++ {
			off := k * (d + 1)
			floats.AddScaled(grad[off:off+d], o.lambda, theta[off:off+d])
		}
	}
}

func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func (lr *LogisticRegression) checkPredict(method string, X mat.Matrix) error {
	if !lr.IsFitted() {
		return errors.NewNotFittedError("LogisticRegression", method)
	}
	_, c := X.Dims()
	return lr.state.RequireFeatures("LogisticRegression."+method, c)
}

// PredictProba returns probability estimates for each class, columns in
// ascending class order.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	row := make([]float64, lr.nFeatures_)
	scores := make([]float64, len(lr.coef_))
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		for k := range lr.coef_ {
			scores[k] = floats.Dot(lr.coef_[k], row) + lr.intercept_[k]
		}
		if lr.nClasses_ == 2 {
			p1 := errors.Sigmoid(scores[0])
			probas.Set(i, 0, 1.0-p1)
			probas.Set(i, 1, p1)
			continue
		}
		lse := errors.LogSumExp(scores)
		for k, s := range scores {
			probas.Set(i, k, math.Exp(s-lse))
		}
	}
	return probas, nil
}

// Predict returns the most probable class for each sample
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.checkPredict("Predict", X); err != nil {
		return nil, err
	}
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.ProbaLabels(probas, lr.classes_), nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ParamString(key, value)
		case "C":
			lr.C, err = model.ParamFloat(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = model.ParamBool(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			lr.randomState = int64(seed)
		case "solver":
			lr.solver, err = model.ParamString(key, value)
		case "max_iter":
			lr.maxIter, err = model.ParamInt(key, value)
		case "tol":
			lr.tol, err = model.ParamFloat(key, value)
		default:
			return model.UnknownParam("LogisticRegression", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(C=%g, penalty=%s, solver=%s, max_iter=%d)", lr.C, lr.penalty, lr.solver, lr.maxIter)
}

type logisticSnapshot struct {
	State        model.ModelState
	Penalty      string
	C            float64
	FitIntercept bool
	Solver       string
	MaxIter      int
	Tol          float64
	RandomState  int64
	Coef         [][]float64
	Intercept    []float64
	Classes      []float64
	NFeatures    int
	NIter        int
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	snap := logisticSnapshot{
		Penalty:      lr.penalty,
		C:            lr.C,
		FitIntercept: lr.fitIntercept,
		Solver:       lr.solver,
		MaxIter:      lr.maxIter,
		Tol:          lr.tol,
		RandomState:  lr.randomState,
		Coef:         lr.coef_,
		Intercept:    lr.intercept_,
		Classes:      lr.classes_,
		NFeatures:    lr.nFeatures_,
		NIter:        lr.nIter_,
	}
	if lr.state != nil {
		snap.State = lr.state.Snapshot()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "encode LogisticRegression")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var snap logisticSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode LogisticRegression")
	}
	*lr = LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      snap.Penalty,
		C:            snap.C,
		fitIntercept: snap.FitIntercept,
		solver:       snap.Solver,
		maxIter:      snap.MaxIter,
		tol:          snap.Tol,
		randomState:  snap.RandomState,
		coef_:        snap.Coef,
		intercept_:   snap.Intercept,
		classes_:     snap.Classes,
		nClasses_:    len(snap.Classes),
		nFeatures_:   snap.NFeatures,
		nIter_:       snap.NIter,
	}
	lr.state.Restore(snap.State)
	return nil
}
