package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/agency-automator/internal/store"
)

const leadColumns = `id, business_name, contact_name, email, phone, industry, location, country, language,
	stage, score, source, google_rating, review_count, has_website, has_social,
	outreach_draft, outreach_channel, recommended_tier, research, followup_count, last_followup_at,
	created_at, updated_at`

// CreateLead inserts a lead.
func (db *DB) CreateLead(ctx context.Context, lead *store.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	researchJSON, err := marshalJSON(lead.Research)
	if err != nil {
		return err
	}
	err = db.pool.QueryRow(ctx,
		`INSERT INTO leads (id, business_name, contact_name, email, phone, industry, location, country, language,
		 stage, score, source, google_rating, review_count, has_website, has_social,
		 outreach_draft, outreach_channel, recommended_tier, research, followup_count, last_followup_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		 RETURNING created_at, updated_at`,
		lead.ID, lead.BusinessName, lead.ContactName, lead.Email, lead.Phone, lead.Industry,
		lead.Location, lead.Country, lead.Language, lead.Stage, lead.Score, lead.Source,
		lead.GoogleRating, lead.ReviewCount, lead.HasWebsite, lead.HasSocial,
		lead.OutreachDraft, lead.OutreachChannel, lead.RecommendedTier, researchJSON,
		lead.FollowupCount, lead.LastFollowupAt,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// UpdateLead rewrites a lead's mutable fields.
func (db *DB) UpdateLead(ctx context.Context, lead *store.Lead) error {
	researchJSON, err := marshalJSON(lead.Research)
	if err != nil {
		return err
	}
	err = db.pool.QueryRow(ctx,
		`UPDATE leads
		 SET contact_name = $1, email = $2, phone = $3, industry = $4, location = $5, country = $6, language = $7,
		     stage = $8, score = $9, google_rating = $10, review_count = $11, has_website = $12, has_social = $13,
		     outreach_draft = $14, outreach_channel = $15, recommended_tier = $16, research = $17,
		     followup_count = $18, last_followup_at = $19, updated_at = NOW()
		 WHERE id = $20
		 RETURNING updated_at`,
		lead.ContactName, lead.Email, lead.Phone, lead.Industry, lead.Location, lead.Country, lead.Language,
		lead.Stage, lead.Score, lead.GoogleRating, lead.ReviewCount, lead.HasWebsite, lead.HasSocial,
		lead.OutreachDraft, lead.OutreachChannel, lead.RecommendedTier, researchJSON,
		lead.FollowupCount, lead.LastFollowupAt, lead.ID,
	).Scan(&lead.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return nil
}

// GetLead retrieves a lead by ID.
func (db *DB) GetLead(ctx context.Context, id uuid.UUID) (*store.Lead, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

// GetLeadByBusinessName retrieves the most recently created lead with the
// given business name.
func (db *DB) GetLeadByBusinessName(ctx context.Context, name string) (*store.Lead, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE business_name = $1
		 ORDER BY created_at DESC LIMIT 1`, name)
	return scanLead(row)
}

// ListLeadsByStage retrieves leads in any of the given stages, highest
// score first.
func (db *DB) ListLeadsByStage(ctx context.Context, stages ...string) ([]*store.Lead, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(stages))
	args := make([]any, len(stages))
	for i, stage := range stages {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = stage
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE stage IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY score DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var leads []*store.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func scanLead(row pgx.Row) (*store.Lead, error) {
	var lead store.Lead
	var researchJSON []byte
	err := row.Scan(&lead.ID, &lead.BusinessName, &lead.ContactName, &lead.Email, &lead.Phone,
		&lead.Industry, &lead.Location, &lead.Country, &lead.Language, &lead.Stage, &lead.Score,
		&lead.Source, &lead.GoogleRating, &lead.ReviewCount, &lead.HasWebsite, &lead.HasSocial,
		&lead.OutreachDraft, &lead.OutreachChannel, &lead.RecommendedTier, &researchJSON,
		&lead.FollowupCount, &lead.LastFollowupAt, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}
	if lead.Research, err = unmarshalJSON(researchJSON); err != nil {
		return nil, err
	}
	return &lead, nil
}
