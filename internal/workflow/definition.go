// Package workflow implements the agency's workflow engine: declarative
// multi-step pipelines executed by LLM agents, with human-in-the-loop
// suspension points and persisted run state.
package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed workflows.schema.json
var definitionsSchema string

// RetryPolicy re-runs an earlier step when a review step scores its input
// below Threshold. The revision loop is bounded by MaxRevisions.
type RetryPolicy struct {
	Threshold    float64 `json:"threshold"`
	MaxRevisions int     `json:"max_revisions"`
	RetryStep    string  `json:"retry_step"`
}

// StepDef is a single node in a workflow definition. Next names the
// following step id; an empty Next ends the workflow.
type StepDef struct {
	ID                    string       `json:"id"`
	Agent                 string       `json:"agent,omitempty"`
	Action                string       `json:"action,omitempty"`
	Next                  string       `json:"next,omitempty"`
	RequiresHumanApproval bool         `json:"requires_human_approval,omitempty"`
	RetryOnLowScore       *RetryPolicy `json:"retry_on_low_score,omitempty"`
}

// Definition is a named workflow: an ordered list of steps starting at
// Steps[0]. Schedule is a standard cron expression consumed by the
// scheduler; an empty schedule means the workflow only runs on demand.
type Definition struct {
	Name        string    `json:"-"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Schedule    string    `json:"schedule,omitempty"`
	Steps       []StepDef `json:"steps"`
}

// Definitions maps workflow name to its definition.
type Definitions map[string]*Definition

type definitionsFile struct {
	Workflows map[string]*Definition `json:"workflows"`
}

// LoadDefinitions reads and validates a workflow definitions file. The file
// is checked against the embedded JSON Schema first, then structurally:
// unique step ids, and every next/retry_step reference resolving to a step
// in the same workflow.
func LoadDefinitions(path string) (Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions validates and decodes raw definition JSON.
func ParseDefinitions(data []byte) (Definitions, error) {
	schemaLoader := gojsonschema.NewStringLoader(definitionsSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate workflow definitions: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return nil, &DefinitionError{
			Name:    first.Field(),
			Message: first.Description(),
		}
	}

	var file definitionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definitions: %w", err)
	}

	defs := make(Definitions, len(file.Workflows))
	for name, def := range file.Workflows {
		def.Name = name
		if err := def.validate(); err != nil {
			return nil, err
		}
		defs[name] = def
	}
	return defs, nil
}

func (d *Definition) validate() error {
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if seen[s.ID] {
			return &DefinitionError{Name: d.Name, Message: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		seen[s.ID] = true
	}
	for _, s := range d.Steps {
		if s.Next != "" && !seen[s.Next] {
			return &DefinitionError{Name: d.Name, Message: fmt.Sprintf("step %q references unknown next step %q", s.ID, s.Next)}
		}
		if s.RetryOnLowScore != nil && !seen[s.RetryOnLowScore.RetryStep] {
			return &DefinitionError{Name: d.Name, Message: fmt.Sprintf("step %q references unknown retry step %q", s.ID, s.RetryOnLowScore.RetryStep)}
		}
	}
	return nil
}

// Step returns the step definition with the given id, or nil.
func (d *Definition) Step(id string) *StepDef {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}
