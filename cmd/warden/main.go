package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"

	"github.com/dbwarden/warden/internal/adapter/mcp"
	"github.com/dbwarden/warden/internal/adapter/policy"
	"github.com/dbwarden/warden/internal/adapter/postgres"
	"github.com/dbwarden/warden/internal/audit"
	"github.com/dbwarden/warden/internal/cache"
	"github.com/dbwarden/warden/internal/config"
	"github.com/dbwarden/warden/internal/core/domain"
	"github.com/dbwarden/warden/internal/core/port"
	"github.com/dbwarden/warden/internal/core/service"
	"github.com/dbwarden/warden/internal/docgen"
	"github.com/dbwarden/warden/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting warden",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("access_tier", cfg.AccessTier.String()),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Int("cache_max_entries", cfg.CacheMaxEntries),
		slog.String("cache_ttl", cfg.CacheTTL.String()),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry is opt-in; noop providers otherwise.
	tracer := telemetry.NoopTracer()
	inst := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "warden", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error.message", err.Error()))
			}
		}()
		tracer = otel.Tracer("github.com/dbwarden/warden")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	// Adapters
	var explorer port.SchemaExplorer = postgres.NewExplorer(pool, cfg.Schemas)
	var executor port.QueryExecutor = postgres.NewExecutor(pool, cfg.AccessTier, cfg.MaxRows, cfg.QueryTimeout)
	if cfg.ExplainOnly {
		executor = postgres.NewExplainOnlyExecutor(executor)
		logger.Info("explain-only mode: read statements run under EXPLAIN")
	}

	// Policy decorator (optional).
	var masks map[string]domain.MaskType
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		explorer = policy.NewPolicyExplorer(explorer, pol)
		masks = pol.Masks()
		logger.Info("policy loaded",
			slog.String("file", cfg.PolicyFile),
			slog.Int("masked_columns", len(masks)),
		)
	}

	// Audit sink (optional NDJSON file).
	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fileAuditor.Close() }()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Domain + cache
	validator := domain.NewTierValidator(cfg.AccessTier)
	resultCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)

	// Services
	explorerSvc := service.NewExplorerService(explorer)
	querySvc := service.NewQueryService(
		validator, executor, resultCache, auditor,
		logger, masks, tracer, inst, cfg.AccessTier,
	)

	// MCP server with tool handlers.
	mcpServer := mcp.NewServer(version, mcp.Deps{
		Explorer:  explorerSvc,
		Query:     querySvc,
		Docs:      docgen.New(),
		Namespace: strings.Join(cfg.Schemas, ","),
	}, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, mcpServer, cfg, logger)
	}
	return serveStdio(ctx, mcpServer, logger)
}

func serveStdio(ctx context.Context, mcpServer *mcpserver.MCPServer, logger *slog.Logger) error {
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(ctx context.Context, mcpServer *mcpserver.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// parseFlags parses CLI arguments into config overrides. Only flags the
// operator actually set become non-nil pointers.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("warden", flag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	accessMode := fs.String("access-mode", "", "access tier: readonly, limited_write, or full_access (overrides ACCESS_MODE)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, or error (overrides LOG_LEVEL)")
	maxRows := fs.Int("max-rows", 0, "maximum rows returned per query (overrides MAX_ROWS)")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout (overrides QUERY_TIMEOUT)")
	cacheMaxEntries := fs.Int("cache-max-entries", 0, "result cache capacity (overrides CACHE_MAX_ENTRIES)")
	cacheTTL := fs.Duration("cache-ttl", 0, "result cache entry lifetime (overrides CACHE_TTL)")
	policyFile := fs.String("policy-file", "", "path to policy YAML (overrides POLICY_FILE)")
	transport := fs.String("transport", "", "transport: stdio or http (overrides TRANSPORT)")
	httpAddr := fs.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token for HTTP transport (overrides HTTP_BEARER_TOKEN)")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	explainOnly := fs.Bool("explain-only", false, "run read statements under EXPLAIN instead of executing them")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log file")
	poolMaxConns := fs.Int("pool-max-conns", 0, "connection pool upper bound (overrides POOL_MAX_CONNS)")
	poolMinConns := fs.Int("pool-min-conns", -1, "connection pool lower bound (overrides POOL_MIN_CONNS)")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "connection max lifetime (overrides POOL_MAX_CONN_LIFETIME)")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	var o config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "access-mode":
			o.AccessTier = accessMode
		case "log-level":
			o.LogLevel = logLevel
		case "max-rows":
			o.MaxRows = maxRows
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "cache-max-entries":
			o.CacheMaxEntries = cacheMaxEntries
		case "cache-ttl":
			o.CacheTTL = cacheTTL
		case "policy-file":
			o.PolicyFile = policyFile
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpBearerToken
		case "pool-max-conns":
			v := int32(*poolMaxConns)
			o.PoolMaxConns = &v
		case "pool-min-conns":
			v := int32(*poolMinConns)
			o.PoolMinConns = &v
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolMaxConnLifetime
		}
	})

	o.OTelEnabled = *otelEnabled
	o.ExplainOnly = *explainOnly
	o.AuditLog = *auditLog

	return o, nil
}

// redactDSN masks the password in a connection string for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
