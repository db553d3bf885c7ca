// Package server exposes the engine as a 13-tool MCP surface over stdio or
// streamable HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/untoldecay/loom/internal/config"
	"github.com/untoldecay/loom/internal/errs"
	"github.com/untoldecay/loom/internal/queries"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/storage"
	"github.com/untoldecay/loom/internal/workflow"
	"github.com/untoldecay/loom/internal/worktree"
)

// Server wires the services to the tool surface.
type Server struct {
	store    storage.Store
	registry *schema.Registry
	flow     *workflow.Service
	trees    *worktree.Service
	queries  *queries.Service
	mcp      *mcpserver.MCPServer
}

// New builds the server and registers the tools.
func New(store storage.Store, registry *schema.Registry) *Server {
	flow := workflow.NewService(store, registry)
	s := &Server{
		store:    store,
		registry: registry,
		flow:     flow,
		trees:    worktree.NewService(store, registry, flow),
		queries:  queries.NewService(store, registry),
	}

	m := mcpserver.NewMCPServer(
		config.GetString("server-name"),
		Version,
		mcpserver.WithToolCapabilities(true),
	)
	m.AddTool(manageItemsTool(), s.handleManageItems)
	m.AddTool(queryItemsTool(), s.handleQueryItems)
	m.AddTool(manageNotesTool(), s.handleManageNotes)
	m.AddTool(queryNotesTool(), s.handleQueryNotes)
	m.AddTool(manageDependenciesTool(), s.handleManageDependencies)
	m.AddTool(queryDependenciesTool(), s.handleQueryDependencies)
	m.AddTool(advanceItemTool(), s.handleAdvanceItem)
	m.AddTool(getNextStatusTool(), s.handleGetNextStatus)
	m.AddTool(getNextItemTool(), s.handleGetNextItem)
	m.AddTool(getBlockedItemsTool(), s.handleGetBlockedItems)
	m.AddTool(createWorkTreeTool(), s.handleCreateWorkTree)
	m.AddTool(completeTreeTool(), s.handleCompleteTree)
	m.AddTool(getContextTool(), s.handleGetContext)
	s.mcp = m
	return s
}

// Run serves on the configured transport until the context ends (http) or
// the stdio stream closes.
func (s *Server) Run(ctx context.Context) error {
	transport := config.GetString("transport")
	switch transport {
	case "stdio":
		slog.Info("serving", "transport", "stdio")
		return mcpserver.ServeStdio(s.mcp)
	case "http":
		addr := fmt.Sprintf("%s:%d", config.GetString("http-host"), config.GetInt("http-port"))
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		go func() {
			<-ctx.Done()
			_ = httpServer.Shutdown(context.Background())
		}()
		slog.Info("serving", "transport", "http", "addr", addr)
		return httpServer.Start(addr)
	default:
		return errs.Validation("unknown transport %q (want stdio or http)", transport)
	}
}
