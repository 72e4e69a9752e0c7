package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

// Ledger implements costledger.Ledger using PostgreSQL. Usage is stored as
// one row per instance per UTC day; monthly cost aggregates the current
// calendar month's rows.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a new Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Usage returns the instance's consumption for the current UTC day and month.
func (l *Ledger) Usage(ctx context.Context, instanceID string) (*policy.Usage, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT
		   COALESCE(SUM(tokens) FILTER (WHERE day = (NOW() AT TIME ZONE 'UTC')::date), 0),
		   COALESCE(SUM(cost_usd), 0)
		 FROM usage_ledger
		 WHERE instance_id = $1 AND tenant_id = $2
		   AND date_trunc('month', day) = date_trunc('month', (NOW() AT TIME ZONE 'UTC')::date)`,
		instanceID, tenantFromCtx(ctx))

	var u policy.Usage
	if err := row.Scan(&u.DailyTokensUsed, &u.MonthlyCostUsed); err != nil {
		return nil, fmt.Errorf("read usage for instance %s: %w", instanceID, err)
	}
	return &u, nil
}

// Reserve records the consumption inside one transaction that locks the
// instance's ledger rows for the current month. The lock serializes
// concurrent reservations, so the projection check always sees the totals
// left by the previous winner and at most one caller takes the last slice
// of budget.
func (l *Ledger) Reserve(ctx context.Context, instanceID string, tokens int64, costUSD float64, limits *policy.CostLimits) (bool, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin reserve for instance %s: %w", instanceID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tenantID := tenantFromCtx(ctx)

	// Today's row must exist so FOR UPDATE has a row to lock.
	if _, err := tx.Exec(ctx,
		`INSERT INTO usage_ledger (tenant_id, instance_id, day, tokens, cost_usd)
		 VALUES ($1, $2, (NOW() AT TIME ZONE 'UTC')::date, 0, 0)
		 ON CONFLICT (tenant_id, instance_id, day) DO NOTHING`,
		tenantID, instanceID); err != nil {
		return false, fmt.Errorf("seed ledger row for instance %s: %w", instanceID, err)
	}

	rows, err := tx.Query(ctx,
		`SELECT tokens, cost_usd, day = (NOW() AT TIME ZONE 'UTC')::date
		 FROM usage_ledger
		 WHERE instance_id = $1 AND tenant_id = $2
		   AND date_trunc('month', day) = date_trunc('month', (NOW() AT TIME ZONE 'UTC')::date)
		 FOR UPDATE`,
		instanceID, tenantID)
	if err != nil {
		return false, fmt.Errorf("lock ledger rows for instance %s: %w", instanceID, err)
	}

	var u policy.Usage
	for rows.Next() {
		var rowTokens int64
		var rowCost float64
		var today bool
		if err := rows.Scan(&rowTokens, &rowCost, &today); err != nil {
			rows.Close()
			return false, err
		}
		if today {
			u.DailyTokensUsed += rowTokens
		}
		u.MonthlyCostUsed += rowCost
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	if limits != nil {
		if limits.DailyTokens != nil && u.DailyTokensUsed+tokens > *limits.DailyTokens {
			return false, nil
		}
		if limits.MonthlyCost != nil && u.MonthlyCostUsed+costUSD > *limits.MonthlyCost {
			return false, nil
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE usage_ledger
		 SET tokens = tokens + $3, cost_usd = cost_usd + $4
		 WHERE instance_id = $1 AND tenant_id = $2 AND day = (NOW() AT TIME ZONE 'UTC')::date`,
		instanceID, tenantID, tokens, costUSD); err != nil {
		return false, fmt.Errorf("reserve usage for instance %s: %w", instanceID, err)
	}

	return true, tx.Commit(ctx)
}

// RecordUsage adds a tool call's consumption to the instance's running
// totals. The upsert keeps concurrent recorders additive.
func (l *Ledger) RecordUsage(ctx context.Context, instanceID string, tokens int64, costUSD float64) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO usage_ledger (tenant_id, instance_id, day, tokens, cost_usd)
		 VALUES ($1, $2, (NOW() AT TIME ZONE 'UTC')::date, $3, $4)
		 ON CONFLICT (tenant_id, instance_id, day)
		 DO UPDATE SET tokens = usage_ledger.tokens + EXCLUDED.tokens,
		               cost_usd = usage_ledger.cost_usd + EXCLUDED.cost_usd`,
		tenantFromCtx(ctx), instanceID, tokens, costUSD)
	if err != nil {
		return fmt.Errorf("record usage for instance %s: %w", instanceID, err)
	}
	return nil
}
