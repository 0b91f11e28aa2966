package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/agency-automator/internal/store"
)

// persistLeadsFromStep mirrors workflow step output into Lead records:
// scouting creates prospects, research and scoring enrich them, drafting
// attaches outreach copy. Lead persistence is best-effort; failures are
// logged and never fail the step.
func (e *Engine) persistLeadsFromStep(ctx context.Context, action string, output map[string]any, source string) {
	var err error
	switch action {
	case "scout_local_businesses":
		var created int
		created, err = e.createLeadsFromScout(ctx, output, source)
		if err == nil && created > 0 {
			e.logger.Info("leads created from scout", "count", created, "source", source)
		}
	case "research_businesses":
		err = e.updateLeadsFromResearch(ctx, output)
	case "score_and_qualify":
		err = e.updateLeadsFromScoring(ctx, output)
	case "draft_outreach":
		err = e.updateLeadsFromOutreach(ctx, output)
	default:
		return
	}
	if err != nil {
		e.logger.Warn("lead persistence failed", "action", action, "error", err)
	}
}

// createLeadsFromScout parses the scout report into new prospect leads.
// Several output shapes are accepted; agents do not always follow the
// schema exactly.
func (e *Engine) createLeadsFromScout(ctx context.Context, output map[string]any, source string) (int, error) {
	items := extractLeadItems(output)
	created := 0
	for _, item := range items {
		name := firstString(item, "business_name", "name", "business")
		if name == "" {
			continue
		}
		lead := &store.Lead{
			ID:              uuid.New(),
			BusinessName:    truncate(name, 200),
			ContactName:     truncate(firstString(item, "contact_name", "owner"), 200),
			Email:           truncate(firstString(item, "email"), 200),
			Phone:           truncate(firstString(item, "phone"), 50),
			Industry:        truncate(firstString(item, "industry", "category", "type"), 100),
			Location:        truncate(firstString(item, "location", "address"), 200),
			Country:         stringOr(item, "country", "MX"),
			Language:        stringOr(item, "language", "es"),
			Stage:           store.LeadStageProspect,
			Score:           clampScore(numberFrom(item, "score")),
			Source:          truncate(source, 200),
			GoogleRating:    floatPtr(item, "google_rating", "rating"),
			ReviewCount:     intPtr(item, "review_count", "reviews"),
			HasWebsite:      boolPtr(item, "has_website"),
			HasSocial:       boolPtr(item, "has_social"),
			RecommendedTier: firstString(item, "recommended_service_tier", "recommended_tier"),
		}
		if err := e.store.CreateLead(ctx, lead); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (e *Engine) updateLeadsFromResearch(ctx context.Context, output map[string]any) error {
	items := itemsFromKey(output, "researched_businesses")
	updated := 0
	for _, item := range items {
		lead, ok, err := e.lookupLead(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if research, isMap := item["research"].(map[string]any); isMap {
			lead.Research = research
		} else {
			lead.Research = item
		}
		if tier := firstString(item, "recommended_tier"); tier != "" {
			lead.RecommendedTier = tier
		}
		if score, has := item["score"]; has {
			lead.Score = clampScore(toNumber(score))
		}
		lead.Stage = store.LeadStageResearched
		if err := e.store.UpdateLead(ctx, lead); err != nil {
			return err
		}
		updated++
	}
	if updated > 0 {
		e.logger.Info("leads updated from research", "count", updated)
	}
	return nil
}

func (e *Engine) updateLeadsFromScoring(ctx context.Context, output map[string]any) error {
	items := itemsFromKey(output, "qualified_leads")
	updated := 0
	for _, item := range items {
		lead, ok, err := e.lookupLead(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if score, has := item["score"]; has {
			lead.Score = clampScore(toNumber(score))
		}
		if tier := firstString(item, "recommended_tier"); tier != "" {
			lead.RecommendedTier = tier
		}
		if channel := firstString(item, "outreach_channel"); channel != "" {
			lead.OutreachChannel = channel
		}
		if qualified, has := item["qualified"].(bool); !has || qualified {
			lead.Stage = store.LeadStageQualified
		}
		if err := e.store.UpdateLead(ctx, lead); err != nil {
			return err
		}
		updated++
	}
	if updated > 0 {
		e.logger.Info("leads updated from scoring", "count", updated)
	}
	return nil
}

func (e *Engine) updateLeadsFromOutreach(ctx context.Context, output map[string]any) error {
	items := itemsFromKey(output, "outreach_messages")
	updated := 0
	for _, item := range items {
		lead, ok, err := e.lookupLead(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		lead.OutreachDraft = firstString(item, "email_body", "message")
		if channel := firstString(item, "channel"); channel != "" {
			lead.OutreachChannel = channel
		} else if lead.OutreachChannel == "" {
			lead.OutreachChannel = "email+whatsapp"
		}
		lead.Stage = store.LeadStageOutreachDrafted
		if err := e.store.UpdateLead(ctx, lead); err != nil {
			return err
		}
		updated++
	}
	if updated > 0 {
		e.logger.Info("leads updated from outreach", "count", updated)
	}
	return nil
}

func (e *Engine) lookupLead(ctx context.Context, item map[string]any) (*store.Lead, bool, error) {
	name := firstString(item, "business_name")
	if name == "" {
		return nil, false, nil
	}
	lead, err := e.store.GetLeadByBusinessName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return lead, true, nil
}

// extractLeadItems tolerates the common shapes agents emit for scouted
// leads: a nested scout_report, a businesses/leads/prospects/results
// array, or a single inline lead object.
func extractLeadItems(output map[string]any) []map[string]any {
	if report, ok := output["scout_report"].(map[string]any); ok {
		return itemsFromKey(report, "businesses")
	}
	for _, key := range []string{"businesses", "leads", "prospects", "results"} {
		if _, ok := output[key]; ok {
			return itemsFromKey(output, key)
		}
	}
	if _, ok := output["business_name"]; ok {
		return []map[string]any{output}
	}
	return nil
}

func itemsFromKey(output map[string]any, key string) []map[string]any {
	raw, ok := output[key].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringOr(item map[string]any, key, fallback string) string {
	if s, ok := item[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func numberFrom(item map[string]any, key string) float64 {
	return toNumber(item[key])
}

func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func clampScore(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

func floatPtr(item map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := item[key]; ok {
			if n, isNum := v.(float64); isNum {
				return &n
			}
			if n, isInt := v.(int); isInt {
				f := float64(n)
				return &f
			}
		}
	}
	return nil
}

func intPtr(item map[string]any, keys ...string) *int {
	for _, key := range keys {
		if v, ok := item[key]; ok {
			switch n := v.(type) {
			case float64:
				i := int(n)
				return &i
			case int:
				i := n
				return &i
			}
		}
	}
	return nil
}

func boolPtr(item map[string]any, key string) *bool {
	if b, ok := item[key].(bool); ok {
		return &b
	}
	return nil
}
