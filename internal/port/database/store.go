// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/evaluation"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
	"github.com/fleetgate/fleetgate/internal/domain/template"
	"github.com/fleetgate/fleetgate/internal/domain/version"
)

// Store is the port interface for database operations. Every method is
// tenant-scoped via the tenant ID carried in the context; updates that
// take an expected record version return domain.ErrConflict when the row
// has moved on.
type Store interface {
	// Templates
	ListTemplates(ctx context.Context, includeArchived bool) ([]template.AgentTemplate, error)
	GetTemplate(ctx context.Context, id string) (*template.AgentTemplate, error)
	CreateTemplate(ctx context.Context, req template.CreateRequest) (*template.AgentTemplate, error)
	ArchiveTemplate(ctx context.Context, id string, expectedVersion int) error

	// Versions
	ListVersions(ctx context.Context, templateID string) ([]version.AgentVersion, error)
	GetVersion(ctx context.Context, id string) (*version.AgentVersion, error)
	CreateVersion(ctx context.Context, req version.CreateRequest, genomeHash string) (*version.AgentVersion, error)
	UpdateVersionState(ctx context.Context, id string, state version.LifecycleState, expectedVersion int) error
	UpdateVersionEvalStatus(ctx context.Context, id string, status version.EvalStatus, expectedVersion int) error

	// Instances
	ListInstances(ctx context.Context, versionID string) ([]instance.AgentInstance, error)
	GetInstance(ctx context.Context, id string) (*instance.AgentInstance, error)
	CreateInstance(ctx context.Context, req instance.CreateRequest) (*instance.AgentInstance, error)
	UpdateInstanceState(ctx context.Context, id string, state instance.State, expectedVersion int) error
	RecordHeartbeat(ctx context.Context, id string, at time.Time) error

	// Policy envelopes
	ListEnvelopes(ctx context.Context) ([]policy.Envelope, error)
	GetEnvelope(ctx context.Context, id string) (*policy.Envelope, error)
	CreateEnvelope(ctx context.Context, env *policy.Envelope) (*policy.Envelope, error)
	UpdateEnvelope(ctx context.Context, env *policy.Envelope, expectedVersion int) (*policy.Envelope, error)

	// Evaluation suites and runs
	ListSuites(ctx context.Context) ([]evaluation.Suite, error)
	GetSuite(ctx context.Context, id string) (*evaluation.Suite, error)
	GetDefaultSuite(ctx context.Context) (*evaluation.Suite, error)
	CreateSuite(ctx context.Context, suite *evaluation.Suite) (*evaluation.Suite, error)
	ListRuns(ctx context.Context, versionID string) ([]evaluation.Run, error)
	GetRun(ctx context.Context, id string) (*evaluation.Run, error)
	CreateRun(ctx context.Context, run *evaluation.Run) (*evaluation.Run, error)
	UpdateRun(ctx context.Context, run *evaluation.Run, expectedVersion int) error

	// Approvals
	ListApprovals(ctx context.Context, status approval.Status) ([]approval.Record, error)
	GetApproval(ctx context.Context, id string) (*approval.Record, error)
	FindApproval(ctx context.Context, requestType approval.RequestType, targetID string, status approval.Status) (*approval.Record, error)
	CreateApproval(ctx context.Context, rec *approval.Record) (*approval.Record, error)
	DecideApproval(ctx context.Context, id string, status approval.Status, decidedBy, reason string, expectedVersion int) error
	ConsumeApproval(ctx context.Context, id string, expectedVersion int) error
	ListExpiredApprovals(ctx context.Context, now time.Time) ([]approval.Record, error)
}
