package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbwarden/warden/internal/core/domain"
	"github.com/dbwarden/warden/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// QueryService gates every statement through the tier validator, consults
// the result cache for read statements, and delegates cache misses to the
// database executor. A rejected statement never reaches the executor or the
// cache.
type QueryService struct {
	validator port.QueryValidator
	executor  port.QueryExecutor
	cache     port.ResultCache
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     map[string]domain.MaskType // column-name -> mask-type (nil = no masking)
	tracer    trace.Tracer
	inst      port.Instrumentation
	tier      domain.AccessTier

	// Collapses concurrent identical cache misses into one database call.
	group singleflight.Group
}

func NewQueryService(
	validator port.QueryValidator,
	executor port.QueryExecutor,
	resultCache port.ResultCache,
	auditor port.QueryAuditor,
	logger *slog.Logger,
	masks map[string]domain.MaskType,
	tracer trace.Tracer,
	inst port.Instrumentation,
	tier domain.AccessTier,
) *QueryService {
	if resultCache == nil {
		resultCache = port.NoopCache{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validator: validator,
		executor:  executor,
		cache:     resultCache,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
		tier:      tier,
	}
}

// Execute validates the statement for the active tier and, if allowed, runs
// it. Read statements go through the result cache; anything else bypasses it
// entirely. The namespace scopes the cache key for callers that pin a schema.
func (s *QueryService) Execute(ctx context.Context, sql, namespace string) ([]map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	if err := s.validator.Validate(sql); err != nil {
		s.logger.WarnContext(ctx, "statement rejected by policy",
			slog.String("db.statement", sql),
			slog.String("access_tier", s.tier.String()),
			slog.String("error.type", "policy_violation"),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, fmt.Errorf("validation: %w", err)
	}

	cacheable := domain.IsReadStatement(sql)

	if cacheable {
		if rows, ok := s.cache.Get(sql, namespace); ok {
			s.inst.IncrementCacheHits(ctx)
			span.SetAttributes(
				attribute.Bool("db.cache.hit", true),
				attribute.Int("db.response.rows", len(rows)),
			)
			s.logger.DebugContext(ctx, "cache hit", slog.String("db.statement", truncate(sql, 80)))
			s.auditor.Record(ctx, port.AuditEntry{
				Tool:         toolNameFromCtx(ctx),
				SQL:          sql,
				Tier:         s.tier.String(),
				CacheHit:     true,
				RowsReturned: len(rows),
			})
			domain.MaskRows(rows, s.masks)
			return rows, nil
		}
		s.inst.IncrementCacheMisses(ctx)
		span.SetAttributes(attribute.Bool("db.cache.hit", false))
	}

	start := time.Now()
	rows, err := s.dispatch(ctx, sql, namespace, cacheable)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         toolNameFromCtx(ctx),
		SQL:          sql,
		Tier:         s.tier.String(),
		RowsReturned: len(rows),
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return rows, err
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", len(rows)))
	domain.MaskRows(rows, s.masks)

	return rows, nil
}

// dispatch runs the statement through the executor. Cacheable statements are
// deduplicated with singleflight and written back to the cache on success.
func (s *QueryService) dispatch(ctx context.Context, sql, namespace string, cacheable bool) ([]map[string]any, error) {
	if !cacheable {
		return s.executor.Execute(ctx, sql)
	}

	v, err, _ := s.group.Do(sql+"\x00"+namespace, func() (any, error) {
		rows, err := s.executor.Execute(ctx, sql)
		if err != nil {
			return nil, err
		}
		s.cache.Set(sql, rows, namespace)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	// Each caller gets its own copy: singleflight shares one result across
	// concurrent callers, and masking mutates rows in place.
	return copyRows(v.([]map[string]any)), nil
}

func copyRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		out[i] = m
	}
	return out
}

// CacheStats exposes cache introspection to the tool layer.
func (s *QueryService) CacheStats() port.CacheStats {
	return s.cache.Stats()
}

// ClearCache empties the result cache.
func (s *QueryService) ClearCache(ctx context.Context) {
	s.cache.Clear()
	s.logger.InfoContext(ctx, "query cache cleared")
}

// SecurityInfo describes the active policy for the security_info tool.
type SecurityInfo struct {
	AccessTier       string `json:"access_tier"`
	WriteAllowed     bool   `json:"write_allowed"`
	DangerousAllowed bool   `json:"dangerous_allowed"`
}

func (s *QueryService) SecurityInfo() SecurityInfo {
	return SecurityInfo{
		AccessTier:       s.tier.String(),
		WriteAllowed:     s.tier.AllowsWrite(),
		DangerousAllowed: s.tier.AllowsDangerous(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
