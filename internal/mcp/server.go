package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server exposing sync status, the failed sessions and a
// manual trigger. sched may be nil; trigger_sync then reports an error.
func New(ledger Ledger, wm Watermark, sched Trigger, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("hevysync", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("hevysync uploads Hevy strength workouts to Garmin Connect. Use these tools to see how far the sync has got, which workouts keep failing, and to start a pass."),
	)

	h := &handlers{ledger: ledger, wm: wm, sched: sched, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolSyncStatus, Handler: h.syncStatus},
		server.ServerTool{Tool: toolListFailedSessions, Handler: h.listFailedSessions},
		server.ServerTool{Tool: toolGetDelivery, Handler: h.getDelivery},
		server.ServerTool{Tool: toolTriggerSync, Handler: h.triggerSync},
	)

	s.AddResources(
		server.ServerResource{Resource: resLastPass, Handler: h.lastPass},
		server.ServerResource{Resource: resFailedSessions, Handler: h.failedSessions},
	)

	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s)
}

type handlers struct {
	ledger Ledger
	wm     Watermark
	sched  Trigger
	log    *slog.Logger
}

var resLastPass = mcp.NewResource(
	"hevysync://last_pass",
	"Last Pass",
	mcp.WithResourceDescription("Outcome of the most recent sync pass: counts and the watermark before and after"),
	mcp.WithMIMEType("application/json"),
)

var resFailedSessions = mcp.NewResource(
	"hevysync://failed_sessions",
	"Failed Sessions",
	mcp.WithResourceDescription("Workouts that are being retried or were abandoned, with their last error"),
	mcp.WithMIMEType("application/json"),
)
