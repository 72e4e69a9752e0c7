package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/template"
)

const templateColumns = `id, tenant_id, name, description, labels, archived, version, created_at, updated_at`

func scanTemplate(row scannable) (template.AgentTemplate, error) {
	var t template.AgentTemplate
	var labelsJSON []byte
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &labelsJSON, &t.Archived, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	if len(labelsJSON) > 0 {
		if err := json.Unmarshal(labelsJSON, &t.Labels); err != nil {
			return t, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context, includeArchived bool) ([]template.AgentTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM agent_templates
		 WHERE tenant_id = $1 AND ($2 OR NOT archived) ORDER BY created_at DESC`,
		tenantFromCtx(ctx), includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []template.AgentTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*template.AgentTemplate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM agent_templates WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	t, err := scanTemplate(row)
	if err != nil {
		return nil, notFoundWrap(err, "get template %s", id)
	}
	return &t, nil
}

func (s *Store) CreateTemplate(ctx context.Context, req template.CreateRequest) (*template.AgentTemplate, error) {
	labelsJSON, err := json.Marshal(req.Labels)
	if err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_templates (tenant_id, name, description, labels)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+templateColumns,
		tenantFromCtx(ctx), req.Name, req.Description, labelsJSON)

	t, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return &t, nil
}

func (s *Store) ArchiveTemplate(ctx context.Context, id string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_templates SET archived = TRUE, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2 AND tenant_id = $3`,
		id, expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("archive template %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive template %s: %w", id, domain.ErrConflict)
	}
	return nil
}
