package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dbwarden/warden/internal/core/domain"
)

// Policy holds operator-controlled configuration loaded from a YAML file.
// Supports schema allowlisting, data dictionary context, and column-level
// PII masking.
type Policy struct {
	// Schemas is an optional allowlist. When non-empty, exploration tools
	// only surface objects in these schemas.
	Schemas []string      `yaml:"schemas"`
	Context ContextConfig `yaml:"context"`
}

// ContextConfig maps fully-qualified table names (schema.table) to
// business descriptions that are merged into MCP tool responses.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides business descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML supports both the struct format and a plain-string shorthand.
//
//	columns:
//	  email: "User email"           # shorthand → ColumnContext{Description: "User email"}
//	  ssn:                          # struct with optional mask
//	    description: "SSN"
//	    mask: "redact"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	// Decode as struct (avoid infinite recursion by using an alias type).
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}

// Masks extracts a column-name to mask-type map for use in result masking.
func (p *Policy) Masks() map[string]domain.MaskType {
	if p == nil {
		return nil
	}
	masks := make(map[string]domain.MaskType)
	for _, tc := range p.Context.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				masks[col] = cc.Mask
			}
		}
	}
	return masks
}

// AllowsSchema reports whether the schema passes the allowlist. An empty
// allowlist admits everything.
func (p *Policy) AllowsSchema(schema string) bool {
	if p == nil || len(p.Schemas) == 0 {
		return true
	}
	for _, s := range p.Schemas {
		if s == schema {
			return true
		}
	}
	return false
}
