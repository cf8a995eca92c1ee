package postgres

import (
	"context"
	"fmt"

	"github.com/dbwarden/warden/internal/core/port"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Explorer answers schema introspection queries against the information
// schema and pg_catalog.
type Explorer struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
}

func NewExplorer(pool *pgxpool.Pool, schemas []string) *Explorer {
	return &Explorer{pool: pool, schemas: schemas}
}

func (e *Explorer) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	filter, args := schemaFilter(e.schemas, "s.schema_name", 1)
	query := fmt.Sprintf(queryListSchemas, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	defer rows.Close()

	var schemas []port.SchemaInfo
	for rows.Next() {
		var s port.SchemaInfo
		if err := rows.Scan(&s.Name); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := schemaFilter(e.schemas, "t.table_schema", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(
			&t.Schema, &t.Name, &t.Type, &t.RowEstimate,
			&t.TotalBytes, &t.SizeHuman, &t.ColumnCount, &t.HasIndexes,
			&t.Comment,
		); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail := &port.TableDetail{Name: tableName}

	var err error
	if schema != "" {
		detail.Schema = schema
		detail.Comment, err = e.fetchTableComment(ctx, schema, tableName)
	} else {
		detail.Schema, detail.Comment, err = e.fetchTableMeta(ctx, tableName)
	}
	if err != nil {
		return nil, err
	}

	detail.RowEstimate, detail.TotalBytes, detail.SizeHuman, err = e.fetchTableSize(ctx, detail.Schema, tableName)
	if err != nil {
		// Non-fatal: views and some system objects have no size info.
		detail.RowEstimate = 0
		detail.TotalBytes = 0
		detail.SizeHuman = ""
	}

	detail.Columns, err = e.fetchColumns(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	if err := e.markPrimaryKeys(ctx, detail); err != nil {
		return nil, err
	}

	detail.ForeignKeys, err = e.fetchForeignKeys(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	detail.Indexes, err = e.fetchIndexes(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	detail.CheckConstraints, err = e.fetchCheckConstraints(ctx, detail.Schema, tableName)
	if err != nil {
		// Non-fatal: check constraints are enrichment, not essential.
		detail.CheckConstraints = nil
	}

	return detail, nil
}

func (e *Explorer) Relationships(ctx context.Context, schema string) ([]port.Relationship, error) {
	rows, err := e.pool.Query(ctx, queryRelationships, schema)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	defer rows.Close()

	var rels []port.Relationship
	for rows.Next() {
		var r port.Relationship
		if err := rows.Scan(
			&r.ChildTable, &r.ChildColumn,
			&r.ParentTable, &r.ParentColumn,
			&r.ConstraintName,
		); err != nil {
			return nil, fmt.Errorf("scanning relationship row: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (e *Explorer) fetchTableMeta(ctx context.Context, tableName string) (schema, comment string, err error) {
	filter, filterArgs := schemaFilter(e.schemas, "t.table_schema", 2)
	query := fmt.Sprintf(queryTableMeta, filter)
	args := append([]any{tableName}, filterArgs...)

	if err := e.pool.QueryRow(ctx, query, args...).Scan(&schema, &comment); err != nil {
		return "", "", fmt.Errorf("table %q not found: %w", tableName, err)
	}
	return schema, comment, nil
}

func (e *Explorer) fetchTableComment(ctx context.Context, schema, tableName string) (string, error) {
	var comment string
	if err := e.pool.QueryRow(ctx, queryTableComment, schema, tableName).Scan(&comment); err != nil {
		return "", fmt.Errorf("fetching table comment: %w", err)
	}
	return comment, nil
}

func (e *Explorer) fetchTableSize(ctx context.Context, schema, tableName string) (rowEstimate, totalBytes int64, sizeHuman string, err error) {
	err = e.pool.QueryRow(ctx, queryTableSize, schema, tableName).
		Scan(&rowEstimate, &totalBytes, &sizeHuman)
	return rowEstimate, totalBytes, sizeHuman, err
}

func (e *Explorer) fetchColumns(ctx context.Context, schema, tableName string) ([]port.ColumnInfo, error) {
	rows, err := e.pool.Query(ctx, queryColumns, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	defer rows.Close()

	var cols []port.ColumnInfo
	for rows.Next() {
		var c port.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.DefaultValue, &c.Comment); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, tableName)
	}
	return cols, nil
}

func (e *Explorer) markPrimaryKeys(ctx context.Context, detail *port.TableDetail) error {
	rows, err := e.pool.Query(ctx, queryPrimaryKeys, detail.Schema, detail.Name)
	if err != nil {
		return fmt.Errorf("fetching primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning primary key row: %w", err)
		}
		pks[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range detail.Columns {
		if pks[detail.Columns[i].Name] {
			detail.Columns[i].IsPrimaryKey = true
		}
	}
	return nil
}

func (e *Explorer) fetchForeignKeys(ctx context.Context, schema, tableName string) ([]port.ForeignKey, error) {
	rows, err := e.pool.Query(ctx, queryForeignKeys, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []port.ForeignKey
	for rows.Next() {
		var fk port.ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scanning foreign key row: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (e *Explorer) fetchIndexes(ctx context.Context, schema, tableName string) ([]port.IndexInfo, error) {
	rows, err := e.pool.Query(ctx, queryIndexes, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching indexes: %w", err)
	}
	defer rows.Close()

	var idxs []port.IndexInfo
	for rows.Next() {
		var idx port.IndexInfo
		if err := rows.Scan(&idx.Name, &idx.Definition, &idx.IsUnique); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

func (e *Explorer) fetchCheckConstraints(ctx context.Context, schema, tableName string) ([]port.CheckConstraint, error) {
	rows, err := e.pool.Query(ctx, queryCheckConstraints, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("fetching check constraints: %w", err)
	}
	defer rows.Close()

	var checks []port.CheckConstraint
	for rows.Next() {
		var c port.CheckConstraint
		if err := rows.Scan(&c.Name, &c.Expression); err != nil {
			return nil, fmt.Errorf("scanning check constraint row: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
