// Package errors provides structured error handling and the warning system
// used across the moderato pipeline. Fatal conditions (schema violations,
// unusable imputation targets) become typed errors carrying stack traces;
// recoverable conditions (degenerate folds, unseen levels, non-convergence)
// are routed through the warning handler and never abort a run.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("moderato-warning: %v\n", w)
	}
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the process-wide warning handler.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink. Set lazily from
// the CLI to avoid an import cycle between pkg/errors and pkg/log.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a recoverable warning. Zerolog takes precedence when installed.
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
// Warning types
// ===========================================================================

// ConvergenceWarning is raised when an iterative solver exhausts its
// iteration budget before meeting its tolerance.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or loosening tol.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
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

// DegenerateFoldWarning is raised when a cross-validation fold cannot
// contribute to the loss average because one of its halves contains a single
// outcome class. The fold is excluded and selection continues.
type DegenerateFoldWarning struct {
	Fold    int
	NFolds  int
	Class   float64
	Context string
}

func (w *DegenerateFoldWarning) Error() string {
	return fmt.Sprintf("fold %d/%d contains only outcome class %g during %s; fold excluded from the loss average",
		w.Fold+1, w.NFolds, w.Class, w.Context)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *DegenerateFoldWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("fold", w.Fold).
		Int("n_folds", w.NFolds).
		Float64("class", w.Class).
		Str("context", w.Context).
		Str("type", "DegenerateFoldWarning")
}

// NewDegenerateFoldWarning creates a DegenerateFoldWarning.
func NewDegenerateFoldWarning(fold, nFolds int, class float64, context string) *DegenerateFoldWarning {
	return &DegenerateFoldWarning{Fold: fold, NFolds: nFolds, Class: class, Context: context}
}

// UnseenLevelWarning is raised when a categorical value absent from the
// fitted encoding spec is encountered at transform time. The affected row's
// dummy block is zero-filled (treated as the reference level).
type UnseenLevelWarning struct {
	Field string
	Level float64
	Row   int
}

func (w *UnseenLevelWarning) Error() string {
	return fmt.Sprintf("field %q: level %g at row %d was never seen during encoder fitting; dummy columns zero-filled", w.Field, w.Level, w.Row)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *UnseenLevelWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("field", w.Field).
		Float64("level", w.Level).
		Int("row", w.Row).
		Str("type", "UnseenLevelWarning")
}

// NewUnseenLevelWarning creates an UnseenLevelWarning.
func NewUnseenLevelWarning(field string, level float64, row int) *UnseenLevelWarning {
	return &UnseenLevelWarning{Field: field, Level: level, Row: row}
}

// UndefinedMetricWarning is raised when a metric is ill-defined for the given
// inputs, for example AUC on a single-class label vector.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// NewUndefinedMetricWarning creates an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ColumnFillWarning is raised when scoring-time column alignment has to
// zero-fill a column the fitted model was trained on.
type ColumnFillWarning struct {
	Column string
	Op     string
}

func (w *ColumnFillWarning) Error() string {
	return fmt.Sprintf("%s: column %q absent from input, zero-filled", w.Op, w.Column)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *ColumnFillWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("column", w.Column).
		Str("operation", w.Op).
		Str("type", "ColumnFillWarning")
}

// NewColumnFillWarning creates a ColumnFillWarning.
func NewColumnFillWarning(op, column string) *ColumnFillWarning {
	return &ColumnFillWarning{Column: column, Op: op}
}

// ===========================================================================
// Structured error types
// ===========================================================================

// SchemaError reports an input dataset that violates its declared schema:
// a missing required field or observed values contradicting a field's type.
// Always fatal; the pipeline fails before any partial processing.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("moderato: schema violation on field %q: %s", e.Field, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError creates a SchemaError with a stack trace attached.
func NewSchemaError(field, reason string) error {
	err := &SchemaError{Field: field, Reason: reason}
	return errors.WithStack(err)
}

// ImputationError reports a field whose missing entries cannot be imputed,
// typically because no usable predictor rows exist.
type ImputationError struct {
	Field  string
	Reason string
}

func (e *ImputationError) Error() string {
	return fmt.Sprintf("moderato: cannot impute field %q: %s", e.Field, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ImputationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "ImputationError")
}

// NewImputationError creates an ImputationError with a stack trace attached.
func NewImputationError(field, reason string) error {
	err := &ImputationError{Field: field, Reason: reason}
	return errors.WithStack(err)
}

// NotFittedError reports Transform/Predict being called before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("moderato: %s: not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError reports an input whose dimensions differ from expectation.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns
}

func (e *DimensionError) Error() string {
	axisName := "columns"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("moderato: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError reports an argument whose value is invalid for the operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("moderato: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ===========================================================================
// cockroachdb/errors wrappers
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
// Shared sentinel errors
// ===========================================================================

var (
	// ErrEmptyData is returned when an operation receives no rows or columns.
	ErrEmptyData = New("empty data")

	// ErrSingularSystem is returned when a least-squares system cannot be solved.
	ErrSingularSystem = New("singular system")
)
