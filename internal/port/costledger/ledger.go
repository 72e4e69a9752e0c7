// Package costledger defines the port for reading and recording per-instance
// resource usage against policy envelope budgets.
package costledger

import (
	"context"

	"github.com/fleetgate/fleetgate/internal/domain/policy"
)

// Ledger is the port interface for the usage ledger backing budget checks.
type Ledger interface {
	// Usage returns the current daily-token and monthly-cost consumption
	// for an instance. Windows are UTC calendar day and calendar month.
	Usage(ctx context.Context, instanceID string) (*policy.Usage, error)

	// RecordUsage atomically adds a tool call's consumption to the
	// instance's running totals.
	RecordUsage(ctx context.Context, instanceID string, tokens int64, costUSD float64) error

	// Reserve records the consumption only if the projected totals stay
	// within limits, as one atomic check-and-increment. At most one of two
	// concurrent reservations against the last slice of budget succeeds.
	// A false return records nothing. A nil limits never rejects.
	Reserve(ctx context.Context, instanceID string, tokens int64, costUSD float64, limits *policy.CostLimits) (bool, error)
}
