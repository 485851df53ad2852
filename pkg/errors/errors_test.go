package errors

import (
	"strings"
	"testing"
)

func TestWarningHandler(t *testing.T) {
	var captured []error
	SetWarningHandler(func(w error) { captured = append(captured, w) })
	defer SetWarningHandler(nil)

	w := NewConvergenceWarning("solver", 100, "")
	Warn(w)

	if len(captured) != 1 {
		t.Fatalf("captured %d warnings, want 1", len(captured))
	}
	var cw *ConvergenceWarning
	if !As(captured[0], &cw) {
		t.Fatalf("captured warning has type %T", captured[0])
	}
	if cw.Algorithm != "solver" || cw.Iterations != 100 {
		t.Errorf("warning fields = %q/%d, want solver/100", cw.Algorithm, cw.Iterations)
	}
}

func TestZerologWarnFuncTakesPrecedence(t *testing.T) {
	handlerCalled, sinkCalled := false, false
	SetWarningHandler(func(error) { handlerCalled = true })
	SetZerologWarnFunc(func(error) { sinkCalled = true })
	defer func() {
		SetWarningHandler(nil)
		SetZerologWarnFunc(nil)
	}()

	Warn(NewUnseenLevelWarning("stage", 4, 0))
	if !sinkCalled {
		t.Error("zerolog sink was not invoked")
	}
	if handlerCalled {
		t.Error("plain handler was invoked despite the zerolog sink")
	}
}

func TestTypedErrorsCarryStacks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"SchemaError", NewSchemaError("age", "non-numeric"), "schema violation"},
		{"ImputationError", NewImputationError("biomarker", "no observed values"), "cannot impute"},
		{"NotFittedError", NewNotFittedError("Encoder", "Transform"), "not fitted"},
		{"DimensionError", NewDimensionError("Fit", 10, 8, 1), "dimension mismatch"},
		{"ValueError", NewValueError("Fit", "labels must be in {0,1}"), "labels must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("Error() = %q, want substring %q", tt.err.Error(), tt.want)
			}
		})
	}

	// The typed value survives WithStack wrapping.
	var se *SchemaError
	if !As(NewSchemaError("age", "r"), &se) {
		t.Error("As failed to unwrap SchemaError through its stack wrapper")
	}
	var de *DimensionError
	err := Wrap(NewDimensionError("op", 3, 4, 0), "outer context")
	if !As(err, &de) {
		t.Error("As failed to unwrap DimensionError through Wrap")
	}
	if de.Expected != 3 || de.Got != 4 {
		t.Errorf("fields = %d/%d, want 3/4", de.Expected, de.Got)
	}
}

func TestSentinels(t *testing.T) {
	if !Is(Wrap(ErrEmptyData, "context"), ErrEmptyData) {
		t.Error("wrapped ErrEmptyData no longer matches its sentinel")
	}
	if Is(ErrEmptyData, ErrSingularSystem) {
		t.Error("distinct sentinels compare equal")
	}
}
