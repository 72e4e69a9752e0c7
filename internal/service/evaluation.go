package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/evaluation"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/version"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/agentrunner"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// EvaluationService runs evaluation suites against candidate versions and
// maintains the version's eval status gate.
type EvaluationService struct {
	store       database.Store
	events      eventstore.Store
	queue       messagequeue.Queue
	hub         broadcast.Broadcaster
	runner      agentrunner.Runner
	metrics     *fgotel.Metrics
	maxParallel int
	caseTimeout time.Duration
	scorer      evaluation.Scorer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEvaluationService creates a new EvaluationService. metrics and scorer
// may be nil; a nil scorer makes custom criteria fall back to exact match.
func NewEvaluationService(store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster,
	runner agentrunner.Runner, metrics *fgotel.Metrics, maxParallel int, caseTimeout time.Duration) *EvaluationService {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &EvaluationService{
		store:       store,
		events:      events,
		queue:       queue,
		hub:         hub,
		runner:      runner,
		metrics:     metrics,
		maxParallel: maxParallel,
		caseTimeout: caseTimeout,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// SetScorer installs the custom scoring strategy.
func (s *EvaluationService) SetScorer(scorer evaluation.Scorer) {
	s.scorer = scorer
}

// ListSuites returns all evaluation suites for the tenant.
func (s *EvaluationService) ListSuites(ctx context.Context) ([]evaluation.Suite, error) {
	return s.store.ListSuites(ctx)
}

// GetSuite returns a suite by ID.
func (s *EvaluationService) GetSuite(ctx context.Context, id string) (*evaluation.Suite, error) {
	return s.store.GetSuite(ctx, id)
}

// CreateSuite validates and persists a new suite.
func (s *EvaluationService) CreateSuite(ctx context.Context, suite *evaluation.Suite) (*evaluation.Suite, error) {
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreateSuite(ctx, suite)
}

// ListRuns returns runs for a version; an empty versionID lists all.
func (s *EvaluationService) ListRuns(ctx context.Context, versionID string) ([]evaluation.Run, error) {
	return s.store.ListRuns(ctx, versionID)
}

// GetRun returns a run by ID.
func (s *EvaluationService) GetRun(ctx context.Context, id string) (*evaluation.Run, error) {
	return s.store.GetRun(ctx, id)
}

// StartRun creates a run and executes it in the background. An empty suiteID
// selects the tenant's default suite. The owning version's eval status moves
// to RUNNING immediately so concurrent promotion attempts see the gate.
func (s *EvaluationService) StartRun(ctx context.Context, suiteID, versionID, actor string) (*evaluation.Run, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var suite *evaluation.Suite
	if suiteID == "" {
		suite, err = s.store.GetDefaultSuite(ctx)
	} else {
		suite, err = s.store.GetSuite(ctx, suiteID)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluation suite: %w", err)
	}
	if len(suite.TestCases) == 0 {
		return nil, fmt.Errorf("suite %s has no test cases: %w", suite.ID, domain.ErrValidation)
	}

	run := &evaluation.Run{
		ID:        uuid.NewString(),
		TenantID:  middleware.TenantIDFromContext(ctx),
		SuiteID:   suite.ID,
		VersionID: versionID,
		Status:    evaluation.RunPending,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.store.CreateRun(ctx, run)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateVersionEvalStatus(ctx, versionID, version.EvalRunning, v.Version); err != nil {
		slog.Warn("set version eval status RUNNING", "version_id", versionID, "error", err)
	}

	appendEvent(ctx, s.events, event.TypeEvalStarted, event.KindEvalRun, created.ID, actor,
		map[string]string{"suite_id": suite.ID, "version_id": versionID})
	publishJSON(ctx, s.queue, messagequeue.SubjectEvalRunQueued, messagequeue.EvalRunQueuedPayload{
		RunID:     created.ID,
		SuiteID:   suite.ID,
		VersionID: versionID,
		TenantID:  created.TenantID,
	})

	// Execution outlives the request; carry only the tenant scope forward.
	runCtx, cancel := context.WithCancel(middleware.WithTenantID(context.Background(), created.TenantID))
	s.registerCancel(created.ID, cancel)
	go s.execute(runCtx, created, suite)

	return created, nil
}

// StartRunForVersion runs the default suite against a version. Implements
// the trigger used when a version enters TESTING.
func (s *EvaluationService) StartRunForVersion(ctx context.Context, versionID, actor string) error {
	_, err := s.StartRun(ctx, "", versionID, actor)
	return err
}

// CancelRun cancels a PENDING or RUNNING run and resets the version's eval
// status to NOT_RUN. Cancelling an already-cancelled run is a no-op;
// cancelling a completed or failed run is a conflict.
func (s *EvaluationService) CancelRun(ctx context.Context, id, actor string) error {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status == evaluation.RunCancelled {
		return nil
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("run %s is already %s: %w", id, run.Status, domain.ErrConflict)
	}

	s.invokeCancel(id)

	now := time.Now().UTC()
	run.Status = evaluation.RunCancelled
	run.CompletedAt = &now
	if err := s.store.UpdateRun(ctx, run, run.Version); err != nil {
		return err
	}

	s.resetVersionEvalStatus(ctx, run.VersionID)
	appendEvent(ctx, s.events, event.TypeEvalCancelled, event.KindEvalRun, id, actor, nil)
	s.hub.BroadcastEvent(ctx, ws.EventEvalCompleted, ws.EvalCompletedEvent{
		RunID:     run.ID,
		VersionID: run.VersionID,
		Status:    string(evaluation.RunCancelled),
	})
	return nil
}

// execute runs every case of the suite with bounded parallelism, grades the
// outputs, and finalizes the run. Case failures are isolated into results;
// only cancellation or a lost finalization race abandons the run.
func (s *EvaluationService) execute(ctx context.Context, run *evaluation.Run, suite *evaluation.Suite) {
	defer s.unregisterCancel(run.ID)

	ctx, span := fgotel.StartEvalRunSpan(ctx, run.ID, run.SuiteID, run.VersionID)
	defer span.End()

	started := time.Now().UTC()
	run.Status = evaluation.RunRunning
	run.StartedAt = &started
	if err := s.store.UpdateRun(ctx, run, run.Version); err != nil {
		slog.Error("mark run RUNNING", "run_id", run.ID, "error", err)
		return
	}

	results := make([]evaluation.CaseResult, len(suite.TestCases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i := range suite.TestCases {
		g.Go(func() error {
			results[i] = s.runCase(gctx, run, &suite.TestCases[i])
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		// CancelRun owns the terminal state.
		return
	}

	passRate, overallScore := evaluation.Aggregate(results)
	status := evaluation.RunCompleted
	if allErrored(results) {
		status = evaluation.RunFailed
	}

	now := time.Now().UTC()
	run.Status = status
	run.Results = results
	run.PassRate = passRate
	run.OverallScore = overallScore
	run.CompletedAt = &now
	if err := s.store.UpdateRun(ctx, run, run.Version); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.Info("run finalized elsewhere, dropping results", "run_id", run.ID)
		} else {
			slog.Error("finalize run", "run_id", run.ID, "error", err)
		}
		return
	}

	s.applyVersionGate(ctx, run.VersionID, status, passRate)
	s.announceCompletion(ctx, run, status, time.Since(started))
}

// runCase executes and grades one test case.
func (s *EvaluationService) runCase(ctx context.Context, run *evaluation.Run, tc *evaluation.TestCase) evaluation.CaseResult {
	cctx, span := fgotel.StartEvalCaseSpan(ctx, run.ID, tc.ID)
	defer span.End()
	if s.caseTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, s.caseTimeout)
		defer cancel()
	}

	t0 := time.Now()
	output, err := s.runner.Invoke(cctx, run.VersionID, tc.Input)
	elapsed := time.Since(t0).Milliseconds()
	if err != nil {
		return evaluation.CaseResult{
			TestCaseID:    tc.ID,
			Passed:        false,
			Error:         err.Error(),
			ExecutionTime: elapsed,
		}
	}

	score, passed := evaluation.ScoreCase(tc, output, s.scorer)
	return evaluation.CaseResult{
		TestCaseID:    tc.ID,
		Passed:        passed,
		Score:         &score,
		Output:        output,
		ExecutionTime: elapsed,
	}
}

// applyVersionGate updates the owning version's eval status from a terminal
// run: COMPLETED passes or fails by the pass-rate threshold, FAILED always
// fails.
func (s *EvaluationService) applyVersionGate(ctx context.Context, versionID string, status evaluation.RunStatus, passRate float64) {
	evalStatus := version.EvalFail
	if status == evaluation.RunCompleted && passRate >= evaluation.PassThreshold {
		evalStatus = version.EvalPass
	}

	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		slog.Error("load version for eval gate", "version_id", versionID, "error", err)
		return
	}
	if err := s.store.UpdateVersionEvalStatus(ctx, versionID, evalStatus, v.Version); err != nil {
		slog.Error("update version eval status", "version_id", versionID, "status", evalStatus, "error", err)
	}
}

// resetVersionEvalStatus puts a version back to NOT_RUN after a cancelled
// run. Idempotent; losing a race to a newer run's status update is fine.
func (s *EvaluationService) resetVersionEvalStatus(ctx context.Context, versionID string) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		slog.Warn("load version for eval reset", "version_id", versionID, "error", err)
		return
	}
	if v.EvalStatus == version.EvalNotRun {
		return
	}
	if err := s.store.UpdateVersionEvalStatus(ctx, versionID, version.EvalNotRun, v.Version); err != nil {
		slog.Warn("reset version eval status", "version_id", versionID, "error", err)
	}
}

func (s *EvaluationService) announceCompletion(ctx context.Context, run *evaluation.Run, status evaluation.RunStatus, elapsed time.Duration) {
	appendEvent(ctx, s.events, event.TypeEvalCompleted, event.KindEvalRun, run.ID, "system",
		event.EvalPayload{
			RunID:        run.ID,
			SuiteID:      run.SuiteID,
			PassRate:     run.PassRate,
			OverallScore: run.OverallScore,
			Passed:       status == evaluation.RunCompleted && run.PassRate >= evaluation.PassThreshold,
		})
	publishJSON(ctx, s.queue, messagequeue.SubjectEvalRunCompleted, messagequeue.EvalRunCompletedPayload{
		RunID:        run.ID,
		SuiteID:      run.SuiteID,
		VersionID:    run.VersionID,
		TenantID:     run.TenantID,
		Status:       string(status),
		PassRate:     run.PassRate,
		OverallScore: run.OverallScore,
	})
	s.hub.BroadcastEvent(ctx, ws.EventEvalCompleted, ws.EvalCompletedEvent{
		RunID:        run.ID,
		VersionID:    run.VersionID,
		Status:       string(status),
		PassRate:     run.PassRate,
		OverallScore: run.OverallScore,
	})
	if s.metrics != nil {
		s.metrics.EvalRunsCompleted.Add(ctx, 1)
		s.metrics.EvalRunDuration.Record(ctx, elapsed.Seconds())
		s.metrics.EvalPassRate.Record(ctx, run.PassRate)
	}
}

func (s *EvaluationService) registerCancel(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[runID] = cancel
}

func (s *EvaluationService) unregisterCancel(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
		delete(s.cancels, runID)
	}
}

func (s *EvaluationService) invokeCancel(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
	}
}

func allErrored(results []evaluation.CaseResult) bool {
	for i := range results {
		if results[i].Error == "" {
			return false
		}
	}
	return len(results) > 0
}
