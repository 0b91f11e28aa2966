package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jonathan/agency-automator/internal/llm"
)

// LLMAgent is an Agent backed by an LLM client. Each agent persona picks
// a model tier matching the difficulty of its actions.
type LLMAgent struct {
	slug   string
	tier   llm.ModelTier
	client llm.Client
	logger *log.Logger
}

// NewLLMAgent creates an LLM-backed agent.
func NewLLMAgent(slug string, tier llm.ModelTier, client llm.Client, logger *log.Logger) *LLMAgent {
	return &LLMAgent{slug: slug, tier: tier, client: client, logger: logger}
}

// Slug returns the agent's registry key.
func (a *LLMAgent) Slug() string {
	return a.slug
}

// Execute runs one action by sending the prompt to the model and parsing
// the structured JSON it returns. A non-JSON reply is not an error; the
// caller receives the raw content and a nil Structured map.
func (a *LLMAgent) Execute(ctx context.Context, action, prompt string, _ map[string]any) (*Result, error) {
	start := time.Now()
	resp, err := a.client.GenerateJSON(ctx, prompt, a.tier)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Content:    resp.Text,
		CostUSD:    resp.CostUSD,
		DurationMS: time.Since(start).Milliseconds(),
	}

	var structured map[string]any
	if jsonErr := json.Unmarshal([]byte(resp.Text), &structured); jsonErr == nil {
		result.Structured = structured
	} else {
		a.logger.Warn("agent returned non-JSON output",
			"agent", a.slug, "action", action, "error", jsonErr)
	}

	a.logger.Info("agent executed",
		"agent", a.slug, "action", action,
		"cost_usd", result.CostUSD, "duration_ms", result.DurationMS)

	return result, nil
}
