package overview

import (
	"fmt"

	"github.com/benvon/smart-crm/internal/models"
)

// DetectionError reports a failed entity store query
type DetectionError struct {
	Kind models.EntityKind
	Err  error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("change detection failed for %s: %v", e.Kind, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// AnalysisError reports a failed or timed out language-model call
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ExecutionError reports that every attempted store operation failed
type ExecutionError struct {
	Attempted int
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action execution failed: all %d operations failed: %v", e.Attempted, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PersistenceError reports a failure loading or writing worker state
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("worker state %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
