// Package log defines standard attribute keys for feature selection runs.
//
// Using these keys keeps log records from the model, the ensemble counter,
// the population sampler and the optimizer consistent, so one run can be
// followed end to end by filtering on estimator.id.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model emitting the record.
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies one model instance (a UUID assigned at construction).
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: OperationCount, OperationSample, OperationTrain, OperationEvaluate
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "ensemble", "sampling", "optim"
	ComponentKey = "ml.component"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"
)

// Ensemble
const (
	// EnsembleRunsKey records the number of planned resamples (M).
	EnsembleRunsKey = "ensemble.runs"

	// EnsembleFailuresKey records how many resample x method runs failed.
	EnsembleFailuresKey = "ensemble.failures"

	// ResampleKey identifies one resample within the ensemble.
	ResampleKey = "ensemble.resample"

	// MethodKey names the feature ranker.
	MethodKey = "ensemble.method"

	// SelectedKey records how many features one ranker run selected.
	SelectedKey = "ensemble.selected"
)

// Constraints and Search
const (
	// ConstraintGroupsKey records the number of registered constraint groups.
	ConstraintGroupsKey = "constraint.groups"

	// ConstraintRowsKey records the total number of constraint rows.
	ConstraintRowsKey = "constraint.rows"

	// PopulationSizeKey records the size of the population handed to the optimizer.
	PopulationSizeKey = "search.population"

	// GenerationKey records the current optimizer generation.
	GenerationKey = "search.generation"

	// FitnessKey records the best fitness found so far.
	FitnessKey = "search.fitness"

	// CardinalityKey records the size of a feature set.
	CardinalityKey = "search.cardinality"
)

// Performance and Configuration
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationCount    = "count"
	OperationSample   = "sample_initial"
	OperationTrain    = "train"
	OperationEvaluate = "evaluate"

	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorConfiguration     = "INVALID_CONFIGURATION"
	ErrorEnsembleFailure   = "ENSEMBLE_FAILURE"
)
