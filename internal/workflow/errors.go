package workflow

import (
	"errors"
	"fmt"
)

// UnknownWorkflowError indicates a start request named a pipeline that has
// no definition. Configuration errors are fatal to the caller; nothing is
// created and nothing retries.
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow: %s", e.Name)
}

// NoStepsError indicates a workflow definition exists but defines no steps.
type NoStepsError struct {
	Name string
}

func (e *NoStepsError) Error() string {
	return fmt.Sprintf("workflow %q has no steps defined", e.Name)
}

// DefinitionError indicates a structurally invalid workflow definition
// (duplicate step ids, dangling next/retry references, schema violations).
type DefinitionError struct {
	Name    string
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow %q: %s", e.Name, e.Message)
}

// ErrRunNotPaused is returned by Resume when the run is not waiting on an
// approval.
var ErrRunNotPaused = errors.New("workflow run is not paused for approval")

// ErrStepNotAwaiting is returned by Resume when the named step is not
// awaiting approval.
var ErrStepNotAwaiting = errors.New("workflow step is not awaiting approval")
