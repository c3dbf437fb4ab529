package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type LeadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) CreateLead(ctx context.Context, lead *domain.Lead) error {
	tagsJSON, err := json.Marshal(nonNilTags(lead.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	classificationJSON, err := json.Marshal(lead.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification snapshot: %w", err)
	}
	workflowJSON, err := json.Marshal(lead.Workflow)
	if err != nil {
		return fmt.Errorf("marshal workflow snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO leads (
	id, name, email, phone, score, status, source, tags, source_message_id, thread_key, customer_id, classification, workflow, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		lead.ID, lead.Name, lead.Email, nullableString(lead.Phone), lead.Score, string(lead.Status), string(lead.Source), tagsJSON,
		lead.SourceMessageID, lead.ThreadKey, nullableString(lead.CustomerID), classificationJSON, workflowJSON, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "create lead", fmt.Errorf("lead for message %s already exists", lead.SourceMessageID))
		}
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *LeadRepository) GetLeadByID(ctx context.Context, id string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, email, COALESCE(phone, ''), score, status, source, tags, source_message_id, thread_key, COALESCE(customer_id, ''), classification, workflow, created_at, updated_at
FROM leads
WHERE id = $1
`, id)

	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get lead", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get lead by id: %w", err)
	}
	return &lead, nil
}

func (r *LeadRepository) UpdateLeadStatus(ctx context.Context, id string, status domain.LeadStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE leads
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return requireRow(result, "update lead status", id)
}

// AddLeadTags merges tags into the stored set without duplicates.
func (r *LeadRepository) AddLeadTags(ctx context.Context, id string, tags []string) error {
	tagsJSON, err := json.Marshal(nonNilTags(tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE leads
SET tags = (
	SELECT COALESCE(jsonb_agg(DISTINCT t ORDER BY t), '[]'::jsonb)
	FROM jsonb_array_elements_text(leads.tags || $2::jsonb) AS t
), updated_at = $3
WHERE id = $1
`, id, tagsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add lead tags: %w", err)
	}
	return requireRow(result, "add lead tags", id)
}

func (r *LeadRepository) SetLeadCustomer(ctx context.Context, id, customerID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE leads
SET customer_id = $2, updated_at = $3
WHERE id = $1
`, id, customerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set lead customer: %w", err)
	}
	return requireRow(result, "set lead customer", id)
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var lead domain.Lead
	var status, source string
	var tagsRaw, classificationRaw, workflowRaw []byte
	err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Score,
		&status,
		&source,
		&tagsRaw,
		&lead.SourceMessageID,
		&lead.ThreadKey,
		&lead.CustomerID,
		&classificationRaw,
		&workflowRaw,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := json.Unmarshal(tagsRaw, &lead.Tags); err != nil {
		return domain.Lead{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(classificationRaw, &lead.Classification); err != nil {
		return domain.Lead{}, fmt.Errorf("unmarshal classification snapshot: %w", err)
	}
	if err := json.Unmarshal(workflowRaw, &lead.Workflow); err != nil {
		return domain.Lead{}, fmt.Errorf("unmarshal workflow snapshot: %w", err)
	}
	lead.Status = domain.LeadStatus(status)
	lead.Source = domain.SourceTag(source)
	return lead, nil
}

func requireRow(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
