package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dbwarden/warden/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs validated SQL inside a per-statement transaction. The
// transaction access mode follows the access tier, so even a statement that
// slips past the textual validator cannot write under the readonly tier.
type Executor struct {
	pool         *pgxpool.Pool
	tier         domain.AccessTier
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, tier domain.AccessTier, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		tier:         tier,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: e.accessMode(),
	})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Enforce the timeout at the database level too, so PostgreSQL cancels
	// the statement server-side even if the Go context is cancelled first.
	// SET LOCAL scopes to this transaction only.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	var results []map[string]any
	if domain.IsReadStatement(sql) {
		results, err = e.executeRead(ctx, tx, sql)
	} else {
		results, err = e.executeWrite(ctx, tx, sql)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return results, nil
}

func (e *Executor) executeRead(ctx context.Context, tx pgx.Tx, sql string) ([]map[string]any, error) {
	// Wrap plain SELECTs in a subquery to enforce the server-side row limit.
	// EXPLAIN, SHOW and friends cannot be wrapped.
	wrappedSQL := sql
	if domain.LeadingKeyword(sql) == "SELECT" {
		wrappedSQL = fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", sql, e.maxRows)
	}

	rows, err := tx.Query(ctx, wrappedSQL)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	results, err := rowsToMaps(rows, e.maxRows)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) executeWrite(ctx context.Context, tx pgx.Tx, sql string) ([]map[string]any, error) {
	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return []map[string]any{
		{"rows_affected": tag.RowsAffected(), "status": "success"},
	}, nil
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.tier == domain.ReadOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
