package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fleetgate"

// StartTransitionSpan starts a span for a lifecycle transition.
func StartTransitionSpan(ctx context.Context, targetKind, targetID, from, to string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "transition",
		trace.WithAttributes(
			attribute.String("target.kind", targetKind),
			attribute.String("target.id", targetID),
			attribute.String("transition.from", from),
			attribute.String("transition.to", to),
		),
	)
}

// StartPolicySpan starts a span for a policy authorization check.
func StartPolicySpan(ctx context.Context, instanceID, toolID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "policy.authorize",
		trace.WithAttributes(
			attribute.String("instance.id", instanceID),
			attribute.String("tool.id", toolID),
		),
	)
}

// StartEvalRunSpan starts a span for an evaluation run.
func StartEvalRunSpan(ctx context.Context, runID, suiteID, versionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "eval.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("suite.id", suiteID),
			attribute.String("version.id", versionID),
		),
	)
}

// StartEvalCaseSpan starts a span for a single evaluation case.
func StartEvalCaseSpan(ctx context.Context, runID, caseID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "eval.case",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("case.id", caseID),
		),
	)
}
