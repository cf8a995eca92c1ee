package policy

import (
	"context"
	"fmt"

	"github.com/dbwarden/warden/internal/core/port"
)

// PolicyExplorer decorates a SchemaExplorer with policy enforcement and
// context enrichment. Schemas outside the allowlist are filtered from
// listings and refused on direct lookups; business descriptions from the
// policy YAML are merged into responses.
type PolicyExplorer struct {
	inner  port.SchemaExplorer
	policy *Policy
}

// NewPolicyExplorer wraps an existing SchemaExplorer.
func NewPolicyExplorer(inner port.SchemaExplorer, pol *Policy) *PolicyExplorer {
	return &PolicyExplorer{inner: inner, policy: pol}
}

func (p *PolicyExplorer) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	schemas, err := p.inner.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}
	if len(p.policy.Schemas) == 0 {
		return schemas, nil
	}
	filtered := schemas[:0]
	for _, s := range schemas {
		if p.policy.AllowsSchema(s.Name) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func (p *PolicyExplorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	tables, err := p.inner.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(p.policy.Schemas) > 0 {
		filtered := tables[:0]
		for _, t := range tables {
			if p.policy.AllowsSchema(t.Schema) {
				filtered = append(filtered, t)
			}
		}
		tables = filtered
	}
	MergeTableInfoList(tables, p.policy.Context)
	return tables, nil
}

func (p *PolicyExplorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	if schema != "" && !p.policy.AllowsSchema(schema) {
		return nil, fmt.Errorf("schema %q is not permitted by policy", schema)
	}
	detail, err := p.inner.DescribeTable(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}
	if !p.policy.AllowsSchema(detail.Schema) {
		return nil, fmt.Errorf("schema %q is not permitted by policy", detail.Schema)
	}
	MergeTableDetail(detail, p.policy.Context)
	return detail, nil
}

func (p *PolicyExplorer) Relationships(ctx context.Context, schema string) ([]port.Relationship, error) {
	if !p.policy.AllowsSchema(schema) {
		return nil, fmt.Errorf("schema %q is not permitted by policy", schema)
	}
	return p.inner.Relationships(ctx, schema)
}
