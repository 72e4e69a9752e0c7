package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/fleetgate/fleetgate/internal/domain/approval"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listTemplatesTool(),
		s.getVersionTool(),
		s.getInstanceTool(),
		s.getEvalRunTool(),
		s.listPendingApprovalsTool(),
	)
}

func (s *Server) listTemplatesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_templates",
		mcplib.WithDescription("List all agent templates governed by FleetGate"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListTemplates,
	}
}

func (s *Server) getVersionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_version",
		mcplib.WithDescription("Get an agent version, including its genome hash and lifecycle state"),
		mcplib.WithString("version_id",
			mcplib.Required(),
			mcplib.Description("The version ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetVersion,
	}
}

func (s *Server) getInstanceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_instance",
		mcplib.WithDescription("Get a deployed agent instance and its current state"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("The instance ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetInstance,
	}
}

func (s *Server) getEvalRunTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_eval_run",
		mcplib.WithDescription("Get the status and scores of an evaluation run"),
		mcplib.WithString("run_id",
			mcplib.Required(),
			mcplib.Description("The evaluation run ID to check"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetEvalRun,
	}
}

func (s *Server) listPendingApprovalsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_approvals",
		mcplib.WithDescription("List approval requests awaiting a human decision"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPendingApprovals,
	}
}

func (s *Server) handleListTemplates(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Templates == nil {
		return mcplib.NewToolResultError("template reader not configured"), nil
	}
	templates, err := s.deps.Templates.ListTemplates(ctx, false)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list templates", err), nil
	}
	data, err := json.Marshal(templates)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal templates", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetVersion(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Templates == nil {
		return mcplib.NewToolResultError("template reader not configured"), nil
	}
	args := req.GetArguments()
	versionID, ok := args["version_id"].(string)
	if !ok || versionID == "" {
		return mcplib.NewToolResultError("version_id is required"), nil
	}
	v, err := s.deps.Templates.GetVersion(ctx, versionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get version %s", versionID), err,
		), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal version", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetInstance(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Instances == nil {
		return mcplib.NewToolResultError("instance reader not configured"), nil
	}
	args := req.GetArguments()
	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}
	in, err := s.deps.Instances.GetInstance(ctx, instanceID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get instance %s", instanceID), err,
		), nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal instance", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetEvalRun(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	args := req.GetArguments()
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return mcplib.NewToolResultError("run_id is required"), nil
	}
	r, err := s.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get run %s", runID), err,
		), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal run", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListPendingApprovals(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Approvals == nil {
		return mcplib.NewToolResultError("approval reader not configured"), nil
	}
	records, err := s.deps.Approvals.ListApprovals(ctx, approval.StatusPending)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list approvals", err), nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal approvals", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// toolResultJSON wraps a JSON string as a text tool result.
func toolResultJSON(s string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(s)
}
