package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/agency-automator/internal/agent"
	"github.com/jonathan/agency-automator/internal/followup"
	"github.com/jonathan/agency-automator/internal/hitl"
	"github.com/jonathan/agency-automator/internal/store"
	"github.com/jonathan/agency-automator/internal/workflow"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var unknownWorkflow *workflow.UnknownWorkflowError
	var noSteps *workflow.NoStepsError
	var defErr *workflow.DefinitionError
	var notRegistered *agent.NotRegisteredError
	var validation *ErrValidation

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &unknownWorkflow):
		return http.StatusNotFound
	case errors.Is(err, hitl.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrRunNotPaused),
		errors.Is(err, workflow.ErrStepNotAwaiting):
		return http.StatusConflict
	case errors.Is(err, followup.ErrExhausted):
		return http.StatusConflict
	case errors.As(err, &noSteps), errors.As(err, &defErr),
		errors.As(err, &notRegistered), errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
