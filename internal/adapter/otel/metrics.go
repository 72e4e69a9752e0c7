package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fleetgate"

// Metrics holds all FleetGate metric instruments.
type Metrics struct {
	VersionTransitions  metric.Int64Counter
	InstanceTransitions metric.Int64Counter
	PolicyDecisions     metric.Int64Counter
	ApprovalsRequested  metric.Int64Counter
	ApprovalsDecided    metric.Int64Counter
	EvalRunsCompleted   metric.Int64Counter
	EvalRunDuration     metric.Float64Histogram
	EvalPassRate        metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.VersionTransitions, err = meter.Int64Counter("fleetgate.versions.transitions",
		metric.WithDescription("Number of version lifecycle transitions"))
	if err != nil {
		return nil, err
	}

	m.InstanceTransitions, err = meter.Int64Counter("fleetgate.instances.transitions",
		metric.WithDescription("Number of instance state transitions"))
	if err != nil {
		return nil, err
	}

	m.PolicyDecisions, err = meter.Int64Counter("fleetgate.policy.decisions",
		metric.WithDescription("Number of policy authorization decisions"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsRequested, err = meter.Int64Counter("fleetgate.approvals.requested",
		metric.WithDescription("Number of approval requests created"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsDecided, err = meter.Int64Counter("fleetgate.approvals.decided",
		metric.WithDescription("Number of approval requests decided"))
	if err != nil {
		return nil, err
	}

	m.EvalRunsCompleted, err = meter.Int64Counter("fleetgate.evals.completed",
		metric.WithDescription("Number of evaluation runs completed"))
	if err != nil {
		return nil, err
	}

	m.EvalRunDuration, err = meter.Float64Histogram("fleetgate.evals.duration_seconds",
		metric.WithDescription("Evaluation run duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.EvalPassRate, err = meter.Float64Histogram("fleetgate.evals.pass_rate",
		metric.WithDescription("Evaluation run pass rate"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
