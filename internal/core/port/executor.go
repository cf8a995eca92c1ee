package port

import "context"

// QueryExecutor runs an already-validated SQL statement against the
// database. Read statements return result rows; write statements return a
// single row describing the number of rows affected.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}
