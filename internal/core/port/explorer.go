package port

import "context"

type SchemaInfo struct {
	Name string `json:"name"`
}

type TableInfo struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	RowEstimate int64  `json:"row_estimate"`
	TotalBytes  int64  `json:"total_bytes,omitempty"`
	SizeHuman   string `json:"size_human,omitempty"`
	ColumnCount int    `json:"column_count"`
	HasIndexes  bool   `json:"has_indexes"`
	Comment     string `json:"comment,omitempty"`
}

type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	Comment      string `json:"comment,omitempty"`
}

type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type CheckConstraint struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
}

type TableDetail struct {
	Schema           string            `json:"schema"`
	Name             string            `json:"name"`
	Comment          string            `json:"comment,omitempty"`
	RowEstimate      int64             `json:"row_estimate"`
	TotalBytes       int64             `json:"total_bytes,omitempty"`
	SizeHuman        string            `json:"size_human,omitempty"`
	Columns          []ColumnInfo      `json:"columns"`
	ForeignKeys      []ForeignKey      `json:"foreign_keys,omitempty"`
	Indexes          []IndexInfo       `json:"indexes,omitempty"`
	CheckConstraints []CheckConstraint `json:"check_constraints,omitempty"`
}

// Relationship is one foreign-key edge in the schema graph, used for
// relationship documents and diagrams.
type Relationship struct {
	ChildTable     string `json:"child_table"`
	ChildColumn    string `json:"child_column"`
	ParentTable    string `json:"parent_table"`
	ParentColumn   string `json:"parent_column"`
	ConstraintName string `json:"constraint_name"`
}

type SchemaExplorer interface {
	ListSchemas(ctx context.Context) ([]SchemaInfo, error)
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schema, tableName string) (*TableDetail, error)
	Relationships(ctx context.Context, schema string) ([]Relationship, error)
}
