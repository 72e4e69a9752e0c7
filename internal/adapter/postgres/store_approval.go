package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
)

const approvalColumns = `id, tenant_id, request_type, target_id, status, reason, decision_reason, requested_by, decided_by, version, created_at, expires_at, decided_at`

func scanApproval(row scannable) (approval.Record, error) {
	var rec approval.Record
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.RequestType, &rec.TargetID, &rec.Status,
		&rec.Reason, &rec.DecisionReason, &rec.RequestedBy, &rec.DecidedBy,
		&rec.Version, &rec.CreatedAt, &rec.ExpiresAt, &rec.DecidedAt)
	return rec, err
}

func (s *Store) ListApprovals(ctx context.Context, status approval.Status) ([]approval.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		 WHERE tenant_id = $1 AND ($2 = '' OR status = $2) ORDER BY created_at DESC`,
		tenantFromCtx(ctx), string(status))
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var records []approval.Record
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) GetApproval(ctx context.Context, id string) (*approval.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	rec, err := scanApproval(row)
	if err != nil {
		return nil, notFoundWrap(err, "get approval %s", id)
	}
	return &rec, nil
}

// FindApproval returns the most recent approval matching the request type,
// target and status. Transition gates use this to look for an APPROVED
// record covering the action they are about to apply.
func (s *Store) FindApproval(ctx context.Context, requestType approval.RequestType, targetID string, status approval.Status) (*approval.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		 WHERE request_type = $1 AND target_id = $2 AND status = $3 AND tenant_id = $4
		 ORDER BY created_at DESC LIMIT 1`,
		string(requestType), targetID, string(status), tenantFromCtx(ctx))

	rec, err := scanApproval(row)
	if err != nil {
		return nil, notFoundWrap(err, "find approval %s/%s", requestType, targetID)
	}
	return &rec, nil
}

func (s *Store) CreateApproval(ctx context.Context, rec *approval.Record) (*approval.Record, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO approvals (tenant_id, request_type, target_id, reason, requested_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+approvalColumns,
		tenantFromCtx(ctx), string(rec.RequestType), rec.TargetID, rec.Reason, rec.RequestedBy, rec.ExpiresAt)

	created, err := scanApproval(row)
	if err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	return &created, nil
}

// DecideApproval moves a PENDING record to a terminal status. The status
// guard in the WHERE clause makes the decision first-writer-wins; a second
// decider observes zero rows and gets domain.ErrConflict.
func (s *Store) DecideApproval(ctx context.Context, id string, status approval.Status, decidedBy, reason string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approvals
		 SET status = $2, decided_by = $3, decision_reason = $4, decided_at = NOW(), version = version + 1
		 WHERE id = $1 AND status = 'PENDING' AND version = $5 AND tenant_id = $6`,
		id, string(status), decidedBy, reason, expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("decide approval %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("decide approval %s: %w", id, domain.ErrConflict)
	}
	return nil
}

// ConsumeApproval retires an APPROVED record once the action it authorized
// has committed. The status guard makes the grant single-use; a second
// consumer observes zero rows and gets domain.ErrConflict.
func (s *Store) ConsumeApproval(ctx context.Context, id string, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approvals
		 SET status = 'CONSUMED', version = version + 1
		 WHERE id = $1 AND status = 'APPROVED' AND version = $2 AND tenant_id = $3`,
		id, expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("consume approval %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("consume approval %s: %w", id, domain.ErrConflict)
	}
	return nil
}

// ListExpiredApprovals returns PENDING records whose expiry has passed.
// The expiry sweep runs outside any request, so this query is deliberately
// cross-tenant; the sweep re-scopes per record before cancelling.
func (s *Store) ListExpiredApprovals(ctx context.Context, now time.Time) ([]approval.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approvals
		 WHERE status = 'PENDING' AND expires_at <= $1 ORDER BY expires_at`,
		now)
	if err != nil {
		return nil, fmt.Errorf("list expired approvals: %w", err)
	}
	defer rows.Close()

	var records []approval.Record
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
