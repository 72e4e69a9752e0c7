package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"
)

// invokeToolName is the tool the runtime-side MCP server must expose.
const invokeToolName = "invoke_agent"

// Runner implements the agent runner port by calling a runtime-side MCP
// server. Each Invoke sends one test input to the named agent version and
// returns the raw text output.
type Runner struct {
	endpoint string
	timeout  time.Duration

	mu     sync.Mutex
	client *mcpclient.Client
}

// NewRunner creates a Runner targeting the given streamable-HTTP MCP endpoint.
func NewRunner(endpoint string, timeout time.Duration) *Runner {
	return &Runner{endpoint: endpoint, timeout: timeout}
}

// Invoke executes one input against a version. The call is bounded by the
// configured timeout on top of the caller's context.
func (r *Runner) Invoke(ctx context.Context, versionID, input string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	client, err := r.connect(ctx)
	if err != nil {
		return "", err
	}

	req := mcpprotocol.CallToolRequest{}
	req.Params.Name = invokeToolName
	req.Params.Arguments = map[string]any{
		"version_id": versionID,
		"input":      input,
	}

	result, err := client.CallTool(ctx, req)
	if err != nil {
		r.reset()
		return "", fmt.Errorf("invoke agent %s: %w", versionID, err)
	}
	if result.IsError {
		return "", fmt.Errorf("invoke agent %s: %s", versionID, firstText(result))
	}
	return firstText(result), nil
}

// Close shuts down the underlying MCP connection.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// connect lazily establishes and initializes the MCP client, reusing it
// across calls.
func (r *Runner) connect(ctx context.Context) (*mcpclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := mcpclient.NewStreamableHttpClient(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcp client create: %w", err)
	}

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "fleetgate",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	r.client = client
	return client, nil
}

// reset drops the cached client so the next Invoke reconnects.
func (r *Runner) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
}

// firstText extracts the first text content block from a tool result.
func firstText(result *mcpprotocol.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := mcpprotocol.AsTextContent(c); ok {
			return tc.Text
		}
	}
	return ""
}
