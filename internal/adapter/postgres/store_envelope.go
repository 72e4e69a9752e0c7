package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

const envelopeColumns = `id, tenant_id, name, autonomy_tier, allowed_tools, allowed_data_scopes, cost_limits, guardrails, version, created_at, updated_at`

func scanEnvelope(row scannable) (policy.Envelope, error) {
	var e policy.Envelope
	var costJSON, guardrailsJSON []byte
	if err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.AutonomyTier, &e.AllowedTools,
		&e.AllowedDataScopes, &costJSON, &guardrailsJSON, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, err
	}
	if len(costJSON) > 0 {
		if err := json.Unmarshal(costJSON, &e.CostLimits); err != nil {
			return e, fmt.Errorf("unmarshal cost_limits: %w", err)
		}
	}
	if len(guardrailsJSON) > 0 {
		if err := json.Unmarshal(guardrailsJSON, &e.Guardrails); err != nil {
			return e, fmt.Errorf("unmarshal guardrails: %w", err)
		}
	}
	return e, nil
}

func marshalEnvelopeJSON(e *policy.Envelope) (costJSON, guardrailsJSON []byte, err error) {
	if e.CostLimits != nil {
		costJSON, err = json.Marshal(e.CostLimits)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal cost_limits: %w", err)
		}
	}
	if e.Guardrails != nil {
		guardrailsJSON, err = json.Marshal(e.Guardrails)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal guardrails: %w", err)
		}
	}
	return costJSON, guardrailsJSON, nil
}

func (s *Store) ListEnvelopes(ctx context.Context) ([]policy.Envelope, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+envelopeColumns+` FROM policy_envelopes WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	defer rows.Close()

	var envelopes []policy.Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, e)
	}
	return envelopes, rows.Err()
}

func (s *Store) GetEnvelope(ctx context.Context, id string) (*policy.Envelope, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+envelopeColumns+` FROM policy_envelopes WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	e, err := scanEnvelope(row)
	if err != nil {
		return nil, notFoundWrap(err, "get envelope %s", id)
	}
	return &e, nil
}

func (s *Store) CreateEnvelope(ctx context.Context, env *policy.Envelope) (*policy.Envelope, error) {
	costJSON, guardrailsJSON, err := marshalEnvelopeJSON(env)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO policy_envelopes (tenant_id, name, autonomy_tier, allowed_tools, allowed_data_scopes, cost_limits, guardrails)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+envelopeColumns,
		tenantFromCtx(ctx), env.Name, env.AutonomyTier, pgTextArray(env.AllowedTools),
		pgTextArray(env.AllowedDataScopes), costJSON, guardrailsJSON)

	e, err := scanEnvelope(row)
	if err != nil {
		return nil, fmt.Errorf("create envelope: %w", err)
	}
	return &e, nil
}

func (s *Store) UpdateEnvelope(ctx context.Context, env *policy.Envelope, expectedVersion int) (*policy.Envelope, error) {
	costJSON, guardrailsJSON, err := marshalEnvelopeJSON(env)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE policy_envelopes
		 SET name = $2, autonomy_tier = $3, allowed_tools = $4, allowed_data_scopes = $5,
		     cost_limits = $6, guardrails = $7, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $8 AND tenant_id = $9
		 RETURNING `+envelopeColumns,
		env.ID, env.Name, env.AutonomyTier, pgTextArray(env.AllowedTools),
		pgTextArray(env.AllowedDataScopes), costJSON, guardrailsJSON,
		expectedVersion, tenantFromCtx(ctx))

	e, err := scanEnvelope(row)
	if err != nil {
		return nil, notFoundWrapConflict(err, "update envelope %s", env.ID)
	}
	return &e, nil
}
