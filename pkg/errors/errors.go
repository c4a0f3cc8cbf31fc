// Package errors provides the error taxonomy and warning system for heartrisk.
//
// Every constructor attaches a stack trace through cockroachdb/errors so that
// the logger can report where a failure originated. The types map onto the
// failure classes of the system:
//
//   - ConfigurationError: the model artifact is missing or corrupt at load time
//   - ValidationError: a caller supplied a record with the wrong shape, type or domain
//   - PredictionError: transform/predict failed despite valid input
//   - ModelUnavailableError: a prediction was requested while no artifact is loaded
//   - PipelineBuildError: a training or tuning batch job cannot proceed
//   - MissingColumnError, SchemaError, FileNotFoundError: table level problems
package errors

import (
	"fmt"
	"io/fs"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("heartrisk-warning: %v\n", w)
	}
	// zerologWarnFunc is installed by pkg/log to avoid an import cycle.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the fallback handler used when no structured
// logger has been installed.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs the structured warning sink.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a warning through the structured sink when available and falls
// back to the plain handler otherwise.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warnings
//
// ===========================================================================

// ConvergenceWarning is raised when an iterative solver stops before converging.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// UndefinedMetricWarning is raised when a metric is ill-defined, for example
// precision with no positive predictions.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning creates an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	Estimator errors
//
// ===========================================================================

// NotFittedError is returned when Predict or Transform is called before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("heartrisk: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError is returned when input dimensions do not match expectations.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("heartrisk: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError is returned when an argument has an inappropriate value.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("heartrisk: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError is a general estimator failure wrapping an underlying cause.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("heartrisk: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("heartrisk: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	Service errors
//
// ===========================================================================

// ValidationError reports a caller-supplied value that failed validation.
// It is a client error.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("heartrisk: validation failed for '%s': %s", e.ParamName, e.Reason)
	}
	return fmt.Sprintf("heartrisk: validation failed for '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ConfigurationError reports a model artifact that could not be loaded.
// It is surfaced through the service's unready state, never as a crash.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("heartrisk: cannot load model artifact %q: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a ConfigurationError with a stack trace.
func NewConfigurationError(path string, err error) error {
	return errors.WithStack(&ConfigurationError{Path: path, Err: err})
}

// ModelUnavailableError is returned when an operation needs a loaded model
// and the service is unready. It is a server-side error.
type ModelUnavailableError struct {
	Op string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("heartrisk: %s: model not loaded", e.Op)
}

// NewModelUnavailableError creates a ModelUnavailableError with a stack trace.
func NewModelUnavailableError(op string) error {
	return errors.WithStack(&ModelUnavailableError{Op: op})
}

// PredictionError wraps an internal transformer or classifier failure.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("Prediction error: %v", e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *PredictionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("cause", fmt.Sprint(e.Err)).
		Str("type", "PredictionError")
}

// NewPredictionError creates a PredictionError with a stack trace.
func NewPredictionError(err error) error {
	return errors.WithStack(&PredictionError{Err: err})
}

// PipelineBuildError is fatal to a training or tuning batch job.
type PipelineBuildError struct {
	Stage string
	Err   error
}

func (e *PipelineBuildError) Error() string {
	return fmt.Sprintf("heartrisk: %s: %v", e.Stage, e.Err)
}

func (e *PipelineBuildError) Unwrap() error {
	return e.Err
}

// NewPipelineBuildError creates a PipelineBuildError with a stack trace.
func NewPipelineBuildError(stage string, err error) error {
	return errors.WithStack(&PipelineBuildError{Stage: stage, Err: err})
}

// ===========================================================================
//
//	Table errors
//
// ===========================================================================

// MissingColumnError is returned when a required column is absent from a table.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("heartrisk: column %q not found in %s", e.Column, e.Table)
}

// NewMissingColumnError creates a MissingColumnError with a stack trace.
func NewMissingColumnError(table, column string) error {
	return errors.WithStack(&MissingColumnError{Table: table, Column: column})
}

// SchemaError is returned when a table does not have the expected layout.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("heartrisk: schema error in %s: %s", e.Table, e.Reason)
}

// NewSchemaError creates a SchemaError with a stack trace.
func NewSchemaError(table, reason string) error {
	return errors.WithStack(&SchemaError{Table: table, Reason: reason})
}

// FileNotFoundError is returned when an input table does not exist.
// It unwraps to fs.ErrNotExist.
type FileNotFoundError struct {
	Path string
	Hint string
}

func (e *FileNotFoundError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("heartrisk: %s not found. %s", e.Path, e.Hint)
	}
	return fmt.Sprintf("heartrisk: %s not found", e.Path)
}

func (e *FileNotFoundError) Unwrap() error {
	return fs.ErrNotExist
}

// NewFileNotFoundError creates a FileNotFoundError with a stack trace.
func NewFileNotFoundError(path, hint string) error {
	return errors.WithStack(&FileNotFoundError{Path: path, Hint: hint})
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}

var (
	// ErrEmptyData is returned when an operation receives no rows.
	ErrEmptyData = New("empty data")
)

// NumericalInstabilityError is returned when a solver produces NaN or Inf.
type NumericalInstabilityError struct {
	Operation string
	Iteration int
	Values    []float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("heartrisk: numerical instability in %s at iteration %d (values: %v)", e.Operation, e.Iteration, e.Values)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Iteration: iteration, Values: values})
}
