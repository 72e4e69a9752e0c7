package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/event"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
	"github.com/fleetgate/fleetgate/internal/port/costledger"
	"github.com/fleetgate/fleetgate/internal/port/database"
	"github.com/fleetgate/fleetgate/internal/port/eventstore"
	"github.com/fleetgate/fleetgate/internal/port/messagequeue"
)

// PolicyService authorizes tool invocations against policy envelopes and
// records usage against per-instance budgets.
type PolicyService struct {
	store     database.Store
	events    eventstore.Store
	queue     messagequeue.Queue
	hub       broadcast.Broadcaster
	ledger    costledger.Ledger
	engine    *policy.Engine
	envelopes *EnvelopeService
	metrics   *fgotel.Metrics
}

// NewPolicyService creates a new PolicyService. metrics may be nil.
func NewPolicyService(store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster,
	ledger costledger.Ledger, engine *policy.Engine, envelopes *EnvelopeService, metrics *fgotel.Metrics) *PolicyService {
	return &PolicyService{
		store:     store,
		events:    events,
		queue:     queue,
		hub:       hub,
		ledger:    ledger,
		engine:    engine,
		envelopes: envelopes,
		metrics:   metrics,
	}
}

// Authorize decides whether an instance may execute a tool call. DENY and
// NEEDS_APPROVAL are returned as results, not errors. A NEEDS_APPROVAL
// verdict with an APPROVED record on file for the exact (instance, tool)
// pair is upgraded to ALLOW; otherwise a PENDING approval is ensured.
// An allowed call reserves the estimated tokens against the budget in one
// atomic check-and-increment; actuals arrive later via RecordUsage.
func (s *PolicyService) Authorize(ctx context.Context, instanceID string, req policy.ToolRequest, actor string) (*policy.Result, error) {
	ctx, span := fgotel.StartPolicySpan(ctx, instanceID, req.ToolID)
	defer span.End()

	in, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	var result policy.Result
	if in.State != instance.StateActive {
		result = policy.Result{
			Decision:  policy.DecisionDeny,
			Reason:    fmt.Sprintf("instance is %s, only ACTIVE instances may execute tools", in.State),
			RiskLevel: policy.RiskHigh,
		}
	} else {
		env, err := s.envelopes.GetCached(ctx, in.PolicyEnvelopeID)
		if err != nil {
			return nil, fmt.Errorf("policy envelope %s: %w", in.PolicyEnvelopeID, err)
		}

		usage, err := s.ledger.Usage(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("usage for instance %s: %w", instanceID, err)
		}

		result = s.engine.Evaluate(req, env, *usage)

		if result.Decision == policy.DecisionNeedsApproval {
			result = s.resolveEscalation(ctx, result, instanceID, req, actor)
		}
		if result.Decision == policy.DecisionAllow && req.EstimatedCost > 0 {
			// The reservation re-runs the budget projection under the
			// ledger's lock; a concurrent call that consumed the remaining
			// headroom between Evaluate and here flips this one to DENY.
			ok, err := s.ledger.Reserve(ctx, instanceID, int64(req.EstimatedCost), 0, env.CostLimits)
			if err != nil {
				return nil, fmt.Errorf("reserve usage for instance %s: %w", instanceID, err)
			}
			if !ok {
				result = policy.Result{
					Decision:  policy.DecisionDeny,
					Reason:    "envelope budget exhausted",
					RiskLevel: policy.RiskMedium,
				}
			}
		}
	}

	s.recordDecision(ctx, in.PolicyEnvelopeID, instanceID, req.ToolID, actor, result)
	return &result, nil
}

// resolveEscalation checks the approval ledger for an escalated tool call.
// An APPROVED record for the (instance, tool) pair upgrades the decision to
// ALLOW; otherwise a PENDING record is ensured and the verdict stands.
func (s *PolicyService) resolveEscalation(ctx context.Context, result policy.Result, instanceID string, req policy.ToolRequest, actor string) policy.Result {
	targetID := toolApprovalTarget(instanceID, req.ToolID)

	requirement := approval.Requirement{
		Required:    true,
		Reason:      result.Reason,
		RequestType: approval.TypeToolExecution,
	}
	// Tool grants are standing authorization for the (instance, tool) pair
	// and are not consumed per call; revoking one means expiring the record.
	_, err := ensureApproved(ctx, s.store, s.queue, s.hub, s.metrics, requirement, targetID, actor)
	if err == nil {
		result.Decision = policy.DecisionAllow
		result.Reason = fmt.Sprintf("approved tool execution on file for %s", req.ToolID)
		return result
	}
	if !errors.Is(err, domain.ErrApprovalRequired) {
		slog.Error("resolve tool escalation", "instance_id", instanceID, "tool_id", req.ToolID, "error", err)
	}
	return result
}

// RecordUsage posts actual consumption for an instance to the cost ledger.
func (s *PolicyService) RecordUsage(ctx context.Context, instanceID string, tokens int64, costUSD float64) error {
	if tokens < 0 || costUSD < 0 {
		return fmt.Errorf("usage must be non-negative: %w", domain.ErrValidation)
	}
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return err
	}
	return s.ledger.RecordUsage(ctx, instanceID, tokens, costUSD)
}

// Usage returns the current budget counters for an instance.
func (s *PolicyService) Usage(ctx context.Context, instanceID string) (*policy.Usage, error) {
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return s.ledger.Usage(ctx, instanceID)
}

// recordDecision writes the decision of record to the change log and queue.
func (s *PolicyService) recordDecision(ctx context.Context, envelopeID, instanceID, toolID, actor string, result policy.Result) {
	appendEvent(ctx, s.events, event.TypePolicyDecision, event.KindInstance, instanceID, actor,
		event.DecisionPayload{
			Decision: string(result.Decision),
			Reason:   result.Reason,
			ToolID:   toolID,
			Risk:     string(result.RiskLevel),
		})
	publishJSON(ctx, s.queue, messagequeue.SubjectPolicyDecision, messagequeue.PolicyDecisionPayload{
		InstanceID: instanceID,
		EnvelopeID: envelopeID,
		TenantID:   middleware.TenantIDFromContext(ctx),
		ToolID:     toolID,
		Decision:   string(result.Decision),
		Risk:       string(result.RiskLevel),
		Reason:     result.Reason,
	})
	if s.metrics != nil {
		s.metrics.PolicyDecisions.Add(ctx, 1)
	}
}

// toolApprovalTarget keys tool-execution approvals to (instance, tool) so an
// approval never bleeds across tools or instances.
func toolApprovalTarget(instanceID, toolID string) string {
	return instanceID + "/" + toolID
}
