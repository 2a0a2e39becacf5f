// Standard attribute keys for fatigo log records.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so log output can be filtered by subsystem.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator or component model.
	// Examples: "SGDRegressor", "StandardScaler", "Ensemble"
	ModelNameKey = "model.name"

	// ModelVersionKey is the persisted model version counter.
	ModelVersionKey = "model.version"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	// SamplesKey is a number of samples (training rows, dataset records).
	SamplesKey = "data.samples"

	// FeaturesKey is the feature vector length.
	FeaturesKey = "data.features"

	// BufferSizeKey is the number of samples held in the training buffer.
	BufferSizeKey = "data.buffer_size"

	// PathKey is a filesystem path (dataset, model blob, profile).
	PathKey = "data.path"

	// SchemaKey is a dataset or persistence schema identifier.
	SchemaKey = "data.schema"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	MAEKey        = "metrics.mae"
	RMSEKey       = "metrics.rmse"
	R2ScoreKey    = "metrics.r2_score"
	ConfidenceKey = "preds.confidence"
)

// Fatigue domain.
const (
	// ScoreKey is a fatigue score in [0, 100].
	ScoreKey = "fatigue.score"

	// LevelKey is the severity level derived from a score.
	LevelKey = "fatigue.level"

	// PathUsedKey records which prediction path produced a score.
	PathUsedKey = "fatigue.path"

	// MLWeightKey is the personalization blend weight.
	MLWeightKey = "fatigue.ml_weight"

	// SessionCountKey is the number of completed sessions.
	SessionCountKey = "session.count"

	// StageKey is the personalization stage.
	StageKey = "session.stage"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit        = "fit"
	OperationPredict    = "predict"
	OperationPartialFit = "partial_fit"
	OperationFullRefit  = "full_refit"
	OperationSave       = "save"
	OperationLoad       = "load"
	OperationRollback   = "rollback"
	OperationExtract    = "extract"
	OperationScore      = "score"

	PhaseTraining  = "training"
	PhaseInference = "inference"
)
