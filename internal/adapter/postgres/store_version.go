package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/version"
)

const versionColumns = `id, template_id, tenant_id, version_label, genome, genome_hash, lifecycle_state, eval_status, parent_version_id, version, created_at, updated_at`

func scanVersion(row scannable) (version.AgentVersion, error) {
	var v version.AgentVersion
	var genomeJSON []byte
	if err := row.Scan(&v.ID, &v.TemplateID, &v.TenantID, &v.VersionLabel, &genomeJSON, &v.GenomeHash,
		&v.LifecycleState, &v.EvalStatus, &v.ParentVersionID, &v.Version, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return v, err
	}
	if err := json.Unmarshal(genomeJSON, &v.Genome); err != nil {
		return v, fmt.Errorf("unmarshal genome: %w", err)
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, templateID string) ([]version.AgentVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM agent_versions
		 WHERE template_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`,
		templateID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []version.AgentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) GetVersion(ctx context.Context, id string) (*version.AgentVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM agent_versions WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundWrap(err, "get version %s", id)
	}
	return &v, nil
}

func (s *Store) CreateVersion(ctx context.Context, req version.CreateRequest, genomeHash string) (*version.AgentVersion, error) {
	genomeJSON, err := json.Marshal(req.Genome)
	if err != nil {
		return nil, fmt.Errorf("marshal genome: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_versions (tenant_id, template_id, version_label, genome, genome_hash, parent_version_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+versionColumns,
		tenantFromCtx(ctx), req.TemplateID, req.VersionLabel, genomeJSON, genomeHash, req.ParentVersionID)

	v, err := scanVersion(row)
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	return &v, nil
}

func (s *Store) UpdateVersionState(ctx context.Context, id string, state version.LifecycleState, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_versions SET lifecycle_state = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $3 AND tenant_id = $4`,
		id, string(state), expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update version state %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update version state %s: %w", id, domain.ErrConflict)
	}
	return nil
}

func (s *Store) UpdateVersionEvalStatus(ctx context.Context, id string, status version.EvalStatus, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_versions SET eval_status = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $3 AND tenant_id = $4`,
		id, string(status), expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update version eval status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update version eval status %s: %w", id, domain.ErrConflict)
	}
	return nil
}
