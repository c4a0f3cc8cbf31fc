package log

// Attribute keys shared by every component. Keys are namespaced with a dot
// so that records can be filtered by prefix.

// Model and operation context.
const (
	// ModelNameKey names the classifier family or transformer.
	ModelNameKey = "model.name"

	// ModelIDKey is the artifact identifier assigned at save time.
	ModelIDKey = "model.id"

	// OperationKey is the estimator operation: fit, predict, transform.
	OperationKey = "ml.operation"

	// ComponentKey names the package or subsystem emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase: cleaning, split, training, tuning, inference.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ColumnKey   = "data.column"
	PathKey     = "data.path"

	// MissingKey counts missing cells in a column.
	MissingKey = "data.missing"
)

// Metrics and timing.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	PrecisionKey  = "metrics.precision"
	RecallKey     = "metrics.recall"
	F1Key         = "metrics.f1"
	ROCAUCKey     = "metrics.roc_auc"
	IterationKey  = "training.iteration"
	FoldKey       = "training.fold"
)

// Prediction context.
const (
	ProbabilityKey = "preds.probability"
	RiskLevelKey   = "preds.risk_level"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Configuration and request context.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
	RequestIDKey   = "http.request_id"
)

// Standard values for OperationKey and PhaseKey.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	PhaseCleaning  = "cleaning"
	PhaseSplit     = "split"
	PhaseTraining  = "training"
	PhaseTuning    = "tuning"
	PhaseInference = "inference"
)
