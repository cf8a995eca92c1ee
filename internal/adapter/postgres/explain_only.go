package postgres

import (
	"context"
	"fmt"

	"github.com/dbwarden/warden/internal/core/domain"
	"github.com/dbwarden/warden/internal/core/port"
)

// ExplainOnlyExecutor wraps a QueryExecutor and forces read statements
// through EXPLAIN, so operators can inspect what an automated client would
// run without touching data. Write statements are refused outright.
type ExplainOnlyExecutor struct {
	inner port.QueryExecutor
}

func NewExplainOnlyExecutor(inner port.QueryExecutor) *ExplainOnlyExecutor {
	return &ExplainOnlyExecutor{inner: inner}
}

func (e *ExplainOnlyExecutor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	if !domain.IsReadStatement(sql) {
		return nil, fmt.Errorf("explain-only mode: refusing non-read statement")
	}
	if domain.LeadingKeyword(sql) != "EXPLAIN" {
		sql = "EXPLAIN " + sql
	}
	return e.inner.Execute(ctx, sql)
}
