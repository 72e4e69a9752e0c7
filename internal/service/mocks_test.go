package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/evaluation"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
	"github.com/fleetgate/fleetgate/internal/domain/template"
	"github.com/fleetgate/fleetgate/internal/domain/version"
	"github.com/fleetgate/fleetgate/internal/port/agentrunner"
	"github.com/fleetgate/fleetgate/internal/port/costledger"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ database.Store     = (*mockStore)(nil)
	_ eventstore.Store   = (*mockEventStore)(nil)
	_ messagequeue.Queue = (*mockQueue)(nil)
	_ costledger.Ledger  = (*mockLedger)(nil)
	_ agentrunner.Runner = (*mockRunner)(nil)
)

// mockStore is an in-memory database.Store with the same optimistic-lock
// semantics as the postgres adapter: stale expected versions conflict.
type mockStore struct {
	mu        sync.Mutex
	templates map[string]*template.AgentTemplate
	versions  map[string]*version.AgentVersion
	instances map[string]*instance.AgentInstance
	envelopes map[string]*policy.Envelope
	suites    map[string]*evaluation.Suite
	runs      map[string]*evaluation.Run
	approvals map[string]*approval.Record
}

func newMockStore() *mockStore {
	return &mockStore{
		templates: make(map[string]*template.AgentTemplate),
		versions:  make(map[string]*version.AgentVersion),
		instances: make(map[string]*instance.AgentInstance),
		envelopes: make(map[string]*policy.Envelope),
		suites:    make(map[string]*evaluation.Suite),
		runs:      make(map[string]*evaluation.Run),
		approvals: make(map[string]*approval.Record),
	}
}

func (m *mockStore) ListTemplates(_ context.Context, includeArchived bool) ([]template.AgentTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []template.AgentTemplate
	for _, t := range m.templates {
		if t.Archived && !includeArchived {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockStore) GetTemplate(_ context.Context, id string) (*template.AgentTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) CreateTemplate(_ context.Context, req template.CreateRequest) (*template.AgentTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &template.AgentTemplate{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Labels:      req.Labels,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	m.templates[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *mockStore) ArchiveTemplate(_ context.Context, id string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	if t.Version != expectedVersion {
		return domain.ErrConflict
	}
	t.Archived = true
	t.Version++
	return nil
}

func (m *mockStore) ListVersions(_ context.Context, templateID string) ([]version.AgentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []version.AgentVersion
	for _, v := range m.versions {
		if templateID == "" || v.TemplateID == templateID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *mockStore) GetVersion(_ context.Context, id string) (*version.AgentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, domain.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (m *mockStore) CreateVersion(_ context.Context, req version.CreateRequest, genomeHash string) (*version.AgentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &version.AgentVersion{
		ID:             uuid.NewString(),
		TemplateID:     req.TemplateID,
		VersionLabel:   req.VersionLabel,
		Genome:         req.Genome,
		GenomeHash:     genomeHash,
		LifecycleState: version.StateDraft,
		EvalStatus:     version.EvalNotRun,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}
	m.versions[v.ID] = v
	cp := *v
	return &cp, nil
}

func (m *mockStore) UpdateVersionState(_ context.Context, id string, state version.LifecycleState, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return fmt.Errorf("version %s: %w", id, domain.ErrNotFound)
	}
	if v.Version != expectedVersion {
		return domain.ErrConflict
	}
	v.LifecycleState = state
	v.Version++
	return nil
}

func (m *mockStore) UpdateVersionEvalStatus(_ context.Context, id string, status version.EvalStatus, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return fmt.Errorf("version %s: %w", id, domain.ErrNotFound)
	}
	if v.Version != expectedVersion {
		return domain.ErrConflict
	}
	v.EvalStatus = status
	v.Version++
	return nil
}

func (m *mockStore) ListInstances(_ context.Context, versionID string) ([]instance.AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []instance.AgentInstance
	for _, in := range m.instances {
		if versionID == "" || in.VersionID == versionID {
			out = append(out, *in)
		}
	}
	return out, nil
}

func (m *mockStore) GetInstance(_ context.Context, id string) (*instance.AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
	}
	cp := *in
	return &cp, nil
}

func (m *mockStore) CreateInstance(_ context.Context, req instance.CreateRequest) (*instance.AgentInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := &instance.AgentInstance{
		ID:                uuid.NewString(),
		VersionID:         req.VersionID,
		Environment:       req.Environment,
		RuntimeTarget:     req.RuntimeTarget,
		IdentityPrincipal: req.IdentityPrincipal,
		PolicyEnvelopeID:  req.PolicyEnvelopeID,
		State:             instance.StateProvisioning,
		Version:           1,
		CreatedAt:         time.Now().UTC(),
	}
	m.instances[in.ID] = in
	cp := *in
	return &cp, nil
}

func (m *mockStore) UpdateInstanceState(_ context.Context, id string, state instance.State, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
	}
	if in.Version != expectedVersion {
		return domain.ErrConflict
	}
	in.State = state
	in.Version++
	return nil
}

func (m *mockStore) RecordHeartbeat(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
	}
	in.HeartbeatAt = &at
	return nil
}

func (m *mockStore) ListEnvelopes(_ context.Context) ([]policy.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []policy.Envelope
	for _, e := range m.envelopes {
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockStore) GetEnvelope(_ context.Context, id string) (*policy.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.envelopes[id]
	if !ok {
		return nil, fmt.Errorf("envelope %s: %w", id, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *mockStore) CreateEnvelope(_ context.Context, env *policy.Envelope) (*policy.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *env
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Version = 1
	cp.CreatedAt = time.Now().UTC()
	m.envelopes[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockStore) UpdateEnvelope(_ context.Context, env *policy.Envelope, expectedVersion int) (*policy.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.envelopes[env.ID]
	if !ok {
		return nil, fmt.Errorf("envelope %s: %w", env.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return nil, domain.ErrConflict
	}
	cp := *env
	cp.Version = cur.Version + 1
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	m.envelopes[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockStore) ListSuites(_ context.Context) ([]evaluation.Suite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []evaluation.Suite
	for _, s := range m.suites {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockStore) GetSuite(_ context.Context, id string) (*evaluation.Suite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suites[id]
	if !ok {
		return nil, fmt.Errorf("suite %s: %w", id, domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) GetDefaultSuite(_ context.Context) (*evaluation.Suite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.suites {
		if s.IsDefault {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("default suite: %w", domain.ErrNotFound)
}

func (m *mockStore) CreateSuite(_ context.Context, suite *evaluation.Suite) (*evaluation.Suite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *suite
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now().UTC()
	m.suites[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockStore) ListRuns(_ context.Context, versionID string) ([]evaluation.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []evaluation.Run
	for _, r := range m.runs {
		if versionID == "" || r.VersionID == versionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*evaluation.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) CreateRun(_ context.Context, run *evaluation.Run) (*evaluation.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Version = 1
	m.runs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockStore) UpdateRun(_ context.Context, run *evaluation.Run, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	cp := *run
	cp.Version = cur.Version + 1
	m.runs[cp.ID] = &cp
	run.Version = cp.Version
	return nil
}

func (m *mockStore) ListApprovals(_ context.Context, status approval.Status) ([]approval.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []approval.Record
	for _, r := range m.approvals {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockStore) GetApproval(_ context.Context, id string) (*approval.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) FindApproval(_ context.Context, requestType approval.RequestType, targetID string, status approval.Status) (*approval.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.approvals {
		if r.RequestType == requestType && r.TargetID == targetID && r.Status == status {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("approval for %s: %w", targetID, domain.ErrNotFound)
}

func (m *mockStore) CreateApproval(_ context.Context, rec *approval.Record) (*approval.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Version = 1
	m.approvals[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockStore) DecideApproval(_ context.Context, id string, status approval.Status, decidedBy, reason string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.approvals[id]
	if !ok {
		return fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != approval.StatusPending || r.Version != expectedVersion {
		return domain.ErrConflict
	}
	now := time.Now().UTC()
	r.Status = status
	r.DecidedBy = decidedBy
	r.DecisionReason = reason
	r.DecidedAt = &now
	r.Version++
	return nil
}

func (m *mockStore) ConsumeApproval(_ context.Context, id string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.approvals[id]
	if !ok {
		return fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	if r.Status != approval.StatusApproved || r.Version != expectedVersion {
		return domain.ErrConflict
	}
	r.Status = approval.StatusConsumed
	r.Version++
	return nil
}

func (m *mockStore) ListExpiredApprovals(_ context.Context, now time.Time) ([]approval.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []approval.Record
	for _, r := range m.approvals {
		if r.Status == approval.StatusPending && !r.ExpiresAt.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// mockEventStore records appended change events.
type mockEventStore struct {
	mu        sync.Mutex
	events    []event.ChangeEvent
	appendErr error
}

func (m *mockEventStore) Append(_ context.Context, ev *event.ChangeEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockEventStore) LoadByTarget(_ context.Context, targetKind, targetID string) ([]event.ChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.ChangeEvent
	for i := range m.events {
		if m.events[i].TargetKind == targetKind && m.events[i].TargetID == targetID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *mockEventStore) LoadHistory(ctx context.Context, targetKind, targetID string, _ eventstore.HistoryFilter, _ string, limit int) (*eventstore.HistoryPage, error) {
	evs, _ := m.LoadByTarget(ctx, targetKind, targetID)
	if limit > 0 && len(evs) > limit {
		evs = evs[:limit]
	}
	return &eventstore.HistoryPage{Events: evs, Total: len(evs)}, nil
}

func (m *mockEventStore) typesSeen() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i := range m.events {
		out[i] = m.events[i].Type
	}
	return out
}

// mockQueue records published subjects.
type mockQueue struct {
	mu        sync.Mutex
	published []string
}

func (m *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, subject)
	return nil
}

func (m *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockQueue) Drain() error { return nil }

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

// mockLedger is an in-memory cost ledger.
type mockLedger struct {
	mu     sync.Mutex
	tokens map[string]int64
	cost   map[string]float64
}

func newMockLedger() *mockLedger {
	return &mockLedger{tokens: make(map[string]int64), cost: make(map[string]float64)}
}

func (m *mockLedger) Usage(_ context.Context, instanceID string) (*policy.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &policy.Usage{DailyTokensUsed: m.tokens[instanceID], MonthlyCostUsed: m.cost[instanceID]}, nil
}

func (m *mockLedger) RecordUsage(_ context.Context, instanceID string, tokens int64, costUSD float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[instanceID] += tokens
	m.cost[instanceID] += costUSD
	return nil
}

func (m *mockLedger) Reserve(_ context.Context, instanceID string, tokens int64, costUSD float64, limits *policy.CostLimits) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limits != nil {
		if limits.DailyTokens != nil && m.tokens[instanceID]+tokens > *limits.DailyTokens {
			return false, nil
		}
		if limits.MonthlyCost != nil && m.cost[instanceID]+costUSD > *limits.MonthlyCost {
			return false, nil
		}
	}
	m.tokens[instanceID] += tokens
	m.cost[instanceID] += costUSD
	return true, nil
}

// mockRunner returns canned outputs per input.
type mockRunner struct {
	outputs map[string]string
	err     error
	delay   time.Duration
}

func (m *mockRunner) Invoke(ctx context.Context, _ string, input string) (string, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	if out, ok := m.outputs[input]; ok {
		return out, nil
	}
	return input, nil
}
