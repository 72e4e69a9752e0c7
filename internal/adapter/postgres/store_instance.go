package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
)

const instanceColumns = `id, version_id, tenant_id, environment, runtime_target, identity_principal, policy_envelope_id, state, heartbeat_at, version, created_at, updated_at`

func scanInstance(row scannable) (instance.AgentInstance, error) {
	var in instance.AgentInstance
	err := row.Scan(&in.ID, &in.VersionID, &in.TenantID, &in.Environment, &in.RuntimeTarget,
		&in.IdentityPrincipal, &in.PolicyEnvelopeID, &in.State, &in.HeartbeatAt,
		&in.Version, &in.CreatedAt, &in.UpdatedAt)
	return in, err
}

func (s *Store) ListInstances(ctx context.Context, versionID string) ([]instance.AgentInstance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM agent_instances
		 WHERE version_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`,
		versionID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []instance.AgentInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, in)
	}
	return instances, rows.Err()
}

func (s *Store) GetInstance(ctx context.Context, id string) (*instance.AgentInstance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM agent_instances WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	in, err := scanInstance(row)
	if err != nil {
		return nil, notFoundWrap(err, "get instance %s", id)
	}
	return &in, nil
}

func (s *Store) CreateInstance(ctx context.Context, req instance.CreateRequest) (*instance.AgentInstance, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_instances (tenant_id, version_id, environment, runtime_target, identity_principal, policy_envelope_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+instanceColumns,
		tenantFromCtx(ctx), req.VersionID, req.Environment, req.RuntimeTarget, req.IdentityPrincipal, req.PolicyEnvelopeID)

	in, err := scanInstance(row)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return &in, nil
}

func (s *Store) UpdateInstanceState(ctx context.Context, id string, state instance.State, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_instances SET state = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $3 AND tenant_id = $4`,
		id, string(state), expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update instance state %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update instance state %s: %w", id, domain.ErrConflict)
	}
	return nil
}

// RecordHeartbeat updates the liveness timestamp without bumping the record
// version; heartbeats must not conflict with concurrent state transitions.
func (s *Store) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_instances SET heartbeat_at = $2 WHERE id = $1 AND tenant_id = $3`,
		id, at, tenantFromCtx(ctx))
	return execExpectOne(tag, err, "record heartbeat %s", id)
}
