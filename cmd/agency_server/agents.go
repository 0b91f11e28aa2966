package main

import (
	"github.com/charmbracelet/log"

	"github.com/jonathan/agency-automator/internal/agent"
	"github.com/jonathan/agency-automator/internal/llm"
)

// agentRoster maps every agent slug to the model tier its work needs.
// Cheap tiers carry extraction and scoring; the advanced tier carries
// research, review, and planning.
var agentRoster = map[string]llm.ModelTier{
	"ceo":                   llm.TierAdvanced,
	"content_writer":        llm.TierStandard,
	"editor":                llm.TierAdvanced,
	"seo_analyst":           llm.TierLite,
	"social_media_manager":  llm.TierStandard,
	"analytics_agent":       llm.TierLite,
	"ads_manager":           llm.TierStandard,
	"email_marketing_agent": llm.TierStandard,
	"sales_agent":           llm.TierStandard,
	"cfo_agent":             llm.TierLite,
	"fulfillment_agent":     llm.TierLite,
	"legal_bot":             llm.TierAdvanced,
	"prospector":            llm.TierLite,
	"local_outreach":        llm.TierStandard,
	"smb_researcher":        llm.TierAdvanced,
}

// registerAgents registers the full roster against one shared LLM client.
func registerAgents(registry *agent.Registry, client llm.Client, logger *log.Logger) {
	for slug, tier := range agentRoster {
		registry.Register(agent.NewLLMAgent(slug, tier, client, logger))
	}
	logger.Info("agents registered", "count", len(agentRoster))
}
