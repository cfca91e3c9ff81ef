package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/procdocs/sopgen/internal/expressions"
	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/internal/validation"
)

// SOPServerDeps holds the dependencies for creating a SOPServer.
type SOPServerDeps struct {
	Store     store.Store
	Revisions *store.RevisionLog
	Validator *validation.DocumentValidator
	Filter    *expressions.ExprEngine
	Project   *expressions.GoJQEngine
	Logger    *slog.Logger
}

// SOPServer wraps an MCP server with SOP generation tool handlers.
type SOPServer struct {
	store     store.Store
	revisions *store.RevisionLog
	validator *validation.DocumentValidator
	filter    *expressions.ExprEngine
	project   *expressions.GoJQEngine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewSOPServer creates a new SOPServer with all 3 tools registered.
func NewSOPServer(deps SOPServerDeps) *SOPServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Filter == nil {
		deps.Filter = expressions.NewExprEngine()
	}
	if deps.Project == nil {
		deps.Project = expressions.NewGoJQEngine()
	}

	s := &SOPServer{
		store:     deps.Store,
		revisions: deps.Revisions,
		validator: deps.Validator,
		filter:    deps.Filter,
		project:   deps.Project,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"sopgen",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Sopgen turns BPMN 2.0 process diagrams into SOP step tables. Use sop.generate to transform a diagram, sop.metadata to inspect the header data a diagram carries, and sop.archives to list, fetch or query stored generations."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *SOPServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *SOPServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 3 registered MCP tools as ServerTool entries.
func (s *SOPServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: metadataTool(), Handler: s.handleMetadata},
		{Tool: archivesTool(), Handler: s.handleArchives},
	}
}

// --- Tool definitions ---

func generateTool() mcp.Tool {
	return mcp.NewTool("sop.generate",
		mcp.WithDescription("Transform a BPMN 2.0 XML diagram into an ordered SOP step table"),
		mcp.WithString("xml", mcp.Required(), mcp.Description("BPMN 2.0 XML document")),
		mcp.WithObject("metadata", mcp.Description("Document header overrides; empty fields fall back to diagram extraction")),
		mcp.WithBoolean("archive", mcp.Description("Persist the result and open its revision history")),
		mcp.WithString("note", mcp.Description("Revision note recorded when archiving")),
		mcp.WithString("query", mcp.Description("jq projection applied to the generated context (e.g. '[.steps[].ref]')")),
	)
}

func metadataTool() mcp.Tool {
	return mcp.NewTool("sop.metadata",
		mcp.WithDescription("Extract the document header metadata a BPMN diagram carries"),
		mcp.WithString("xml", mcp.Required(), mcp.Description("BPMN 2.0 XML document")),
	)
}

func archivesTool() mcp.Tool {
	return mcp.NewTool("sop.archives",
		mcp.WithDescription("List, fetch or query stored SOP generations"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("list", "get", "history", "delete"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("archive_id", mcp.Description("Archive id (required for get, history and delete)")),
		mcp.WithString("filter", mcp.Description("Boolean filter expression over rows (e.g. 'step_count > 10')")),
		mcp.WithString("query", mcp.Description("jq projection applied to a fetched archive's context")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows for list (default 50)")),
	)
}
