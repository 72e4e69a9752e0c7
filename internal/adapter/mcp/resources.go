package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/fleetgate/fleetgate/internal/domain/approval"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"fleetgate://templates",
			"Agent Templates",
			mcplib.WithResourceDescription("List of all governed agent templates"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTemplatesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"fleetgate://approvals/pending",
			"Pending Approvals",
			mcplib.WithResourceDescription("Approval requests awaiting a human decision"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePendingApprovalsResource,
	)
}

func (s *Server) handleTemplatesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Templates == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"template reader not configured"}`,
			},
		}, nil
	}
	templates, err := s.deps.Templates.ListTemplates(ctx, false)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(templates)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePendingApprovalsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Approvals == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"approval reader not configured"}`,
			},
		}, nil
	}
	records, err := s.deps.Approvals.ListApprovals(ctx, approval.StatusPending)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
