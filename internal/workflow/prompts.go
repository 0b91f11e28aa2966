package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/agency-automator/internal/prompts"
)

const stepPromptsFile = "steps.json"

const noPreviousOutput = "(No previous step data available. Use your general knowledge and the context provided.)"

// BuildStepPrompt assembles the prompt for a workflow step: the action's
// template with prior step outputs threaded in. Steps without a template
// get a generic instruction so unknown actions still produce structured
// output.
func BuildStepPrompt(action, stepID string, runContext map[string]any) string {
	previous := collectPreviousOutput(runContext, stepID)

	template, err := prompts.Get(stepPromptsFile, action)
	if err == nil {
		location, _ := runContext["location"].(string)
		if location == "" {
			location = "Mexico City"
		}
		industry, _ := runContext["industry"].(string)
		industryLine := "INDUSTRY: All small businesses (restaurants, salons, shops, services, etc.)"
		if industry != "" {
			industryLine = "INDUSTRY FOCUS: " + industry
		}

		return prompts.Format(template, map[string]string{
			"PreviousOutput": previous,
			"Location":       location,
			"IndustryLine":   industryLine,
		})
	}

	if previous != noPreviousOutput {
		return fmt.Sprintf("Execute action: %s\n\nContext from previous steps:\n%s\n\nRespond with structured JSON.", action, previous)
	}
	return fmt.Sprintf("Execute action: %s\n\nRespond with structured JSON.", action)
}

// collectPreviousOutput renders prior step outputs from the run context in
// a deterministic key order, skipping the current step's own slot.
func collectPreviousOutput(runContext map[string]any, stepID string) string {
	keys := make([]string, 0, len(runContext))
	for k := range runContext {
		if k == stepID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		switch v := runContext[k].(type) {
		case map[string]any:
			if data, err := json.MarshalIndent(v, "", "  "); err == nil {
				sb.Write(data)
				sb.WriteString("\n")
			}
		case string:
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return noPreviousOutput
	}
	return out
}
