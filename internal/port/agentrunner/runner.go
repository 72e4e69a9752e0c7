// Package agentrunner defines the port for invoking an agent version with a
// test input during evaluation runs.
package agentrunner

import "context"

// Runner executes one input against a deployed agent version and returns its
// output. Implementations are expected to honor context cancellation; an
// error return is recorded on the case result, not propagated as a run
// failure.
type Runner interface {
	Invoke(ctx context.Context, versionID, input string) (output string, err error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, versionID, input string) (string, error)

// Invoke implements Runner.
func (f Func) Invoke(ctx context.Context, versionID, input string) (string, error) {
	return f(ctx, versionID, input)
}
