package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/dbwarden/warden/internal/core/port"
	"github.com/dbwarden/warden/internal/core/service"
	"github.com/dbwarden/warden/internal/docgen"
)

// Server metadata
const serverName = "warden"

// Deps bundles the services the tool layer calls into.
type Deps struct {
	Explorer *service.ExplorerService
	Query    *service.QueryService
	Docs     *docgen.Generator

	// Namespace scopes result-cache keys. Instances pointed at different
	// schema sets of the same database stay isolated.
	Namespace string
}

// NewServer creates an MCPServer with the full tool surface and
// logging/tracing hooks.
func NewServer(version string, deps Deps, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, deps)

	return s
}
