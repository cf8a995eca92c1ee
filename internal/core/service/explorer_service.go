package service

import (
	"context"

	"github.com/dbwarden/warden/internal/core/port"
)

// ExplorerService exposes schema introspection to the tool layer.
type ExplorerService struct {
	explorer port.SchemaExplorer
}

func NewExplorerService(explorer port.SchemaExplorer) *ExplorerService {
	return &ExplorerService{explorer: explorer}
}

func (s *ExplorerService) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	return s.explorer.ListSchemas(ctx)
}

func (s *ExplorerService) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	return s.explorer.ListTables(ctx)
}

func (s *ExplorerService) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	return s.explorer.DescribeTable(ctx, schema, tableName)
}

func (s *ExplorerService) Relationships(ctx context.Context, schema string) ([]port.Relationship, error) {
	return s.explorer.Relationships(ctx, schema)
}
