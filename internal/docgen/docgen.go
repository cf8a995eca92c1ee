// Package docgen renders schema introspection results into shareable
// documents: markdown, JSON, reference DDL, and Mermaid diagrams.
package docgen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dbwarden/warden/internal/core/port"
)

// Generator renders documents. The zero value is not usable; construct
// with New.
type Generator struct {
	now func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

func (g *Generator) timestamp() string {
	return g.now().Format("2006-01-02 15:04:05")
}

// TableStructureMarkdown renders a full table design document.
func (g *Generator) TableStructureMarkdown(detail *port.TableDetail) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Table Structure: %s.%s\n\n", detail.Schema, detail.Name)
	fmt.Fprintf(&b, "**Generated**: %s  \n", g.timestamp())
	fmt.Fprintf(&b, "**Schema**: %s\n\n---\n\n", detail.Schema)

	b.WriteString("## Table\n\n")
	fmt.Fprintf(&b, "**Name**: `%s`  \n", detail.Name)
	if detail.Comment != "" {
		fmt.Fprintf(&b, "**Comment**: %s  \n", detail.Comment)
	}
	if detail.SizeHuman != "" {
		fmt.Fprintf(&b, "**Size**: %s (~%d rows)  \n", detail.SizeHuman, detail.RowEstimate)
	}
	fmt.Fprintf(&b, "**Columns**: %d  \n", len(detail.Columns))
	fmt.Fprintf(&b, "**Indexes**: %d  \n", len(detail.Indexes))
	fmt.Fprintf(&b, "**Foreign keys**: %d\n\n---\n\n", len(detail.ForeignKeys))

	b.WriteString("## Columns\n\n")
	b.WriteString("| # | Column | Type | Nullable | Default | PK | Comment |\n")
	b.WriteString("|---|--------|------|----------|---------|----|---------|\n")
	for i, col := range detail.Columns {
		fmt.Fprintf(&b, "| %d | `%s` | %s | %s | %s | %s | %s |\n",
			i+1, col.Name, col.DataType,
			yesNo(col.IsNullable), escapePipes(col.DefaultValue),
			yesNo(col.IsPrimaryKey), escapePipes(col.Comment),
		)
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## Indexes\n\n")
	if len(detail.Indexes) == 0 {
		b.WriteString("No indexes.\n\n")
	}
	for _, idx := range detail.Indexes {
		fmt.Fprintf(&b, "### `%s`\n\n", idx.Name)
		kind := "index"
		if idx.IsUnique {
			kind = "unique index"
		}
		fmt.Fprintf(&b, "**Type**: %s\n\n```sql\n%s\n```\n\n", kind, idx.Definition)
	}
	b.WriteString("---\n\n")

	b.WriteString("## Constraints\n\n")
	if len(detail.ForeignKeys) == 0 && len(detail.CheckConstraints) == 0 {
		b.WriteString("No foreign keys or check constraints.\n\n")
	}
	if len(detail.ForeignKeys) > 0 {
		b.WriteString("### Foreign keys\n\n")
		for _, fk := range detail.ForeignKeys {
			fmt.Fprintf(&b, "- **%s**: `%s` references `%s(%s)`\n",
				fk.ConstraintName, fk.ColumnName, fk.ReferencedTable, fk.ReferencedColumn)
		}
		b.WriteString("\n")
	}
	if len(detail.CheckConstraints) > 0 {
		b.WriteString("### Check constraints\n\n")
		for _, c := range detail.CheckConstraints {
			fmt.Fprintf(&b, "- **%s**: `%s`\n", c.Name, c.Expression)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// jsonDoc is the envelope for TableStructureJSON.
type jsonDoc struct {
	Schema      string `json:"schema"`
	Table       string `json:"table"`
	Comment     string `json:"comment,omitempty"`
	GeneratedAt string `json:"generated_at"`
	Structure   struct {
		Columns          []port.ColumnInfo      `json:"columns"`
		Indexes          []port.IndexInfo       `json:"indexes"`
		ForeignKeys      []port.ForeignKey      `json:"foreign_keys"`
		CheckConstraints []port.CheckConstraint `json:"check_constraints"`
	} `json:"structure"`
	Statistics struct {
		ColumnCount     int `json:"column_count"`
		IndexCount      int `json:"index_count"`
		ForeignKeyCount int `json:"foreign_key_count"`
	} `json:"statistics"`
}

// TableStructureJSON renders the table structure as indented JSON.
func (g *Generator) TableStructureJSON(detail *port.TableDetail) (string, error) {
	var doc jsonDoc
	doc.Schema = detail.Schema
	doc.Table = detail.Name
	doc.Comment = detail.Comment
	doc.GeneratedAt = g.timestamp()
	doc.Structure.Columns = detail.Columns
	doc.Structure.Indexes = detail.Indexes
	doc.Structure.ForeignKeys = detail.ForeignKeys
	doc.Structure.CheckConstraints = detail.CheckConstraints
	doc.Statistics.ColumnCount = len(detail.Columns)
	doc.Statistics.IndexCount = len(detail.Indexes)
	doc.Statistics.ForeignKeyCount = len(detail.ForeignKeys)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling table structure: %w", err)
	}
	return string(out), nil
}

// TableDDL renders a reference CREATE TABLE statement. It is meant for
// documentation, not execution.
func (g *Generator) TableDDL(detail *port.TableDetail) string {
	var b strings.Builder

	b.WriteString("-- Reference DDL (for documentation, not execution)\n")
	fmt.Fprintf(&b, "-- Table: %s.%s\n", detail.Schema, detail.Name)
	if detail.Comment != "" {
		fmt.Fprintf(&b, "-- Comment: %s\n", detail.Comment)
	}
	fmt.Fprintf(&b, "-- Generated: %s\n\n", g.timestamp())
	fmt.Fprintf(&b, "CREATE TABLE %s.%s (\n", detail.Schema, detail.Name)

	lines := make([]string, 0, len(detail.Columns))
	for _, col := range detail.Columns {
		line := fmt.Sprintf("    %s %s", col.Name, col.DataType)
		if !col.IsNullable {
			line += " NOT NULL"
		}
		if col.DefaultValue != "" {
			line += " DEFAULT " + col.DefaultValue
		}
		if col.Comment != "" {
			line += " -- " + col.Comment
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);\n")

	var pks []string
	for _, col := range detail.Columns {
		if col.IsPrimaryKey {
			pks = append(pks, col.Name)
		}
	}
	if len(pks) > 0 {
		fmt.Fprintf(&b, "\n-- PRIMARY KEY (%s)\n", strings.Join(pks, ", "))
	}

	return b.String()
}

// DatabaseOverview renders an inventory document over all visible tables.
func (g *Generator) DatabaseOverview(tables []port.TableInfo) string {
	var b strings.Builder

	b.WriteString("# Database Overview\n\n")
	fmt.Fprintf(&b, "**Generated**: %s  \n", g.timestamp())
	fmt.Fprintf(&b, "**Tables**: %d\n\n---\n\n", len(tables))

	b.WriteString("## Tables\n\n")
	b.WriteString("| # | Schema | Table | Type | Rows (est.) | Size | Columns | Indexed |\n")
	b.WriteString("|---|--------|-------|------|-------------|------|---------|---------|\n")

	var totalBytes, totalRows int64
	indexed := 0
	for i, t := range tables {
		fmt.Fprintf(&b, "| %d | %s | `%s` | %s | %d | %s | %d | %s |\n",
			i+1, t.Schema, t.Name, t.Type, t.RowEstimate, t.SizeHuman, t.ColumnCount, yesNo(t.HasIndexes))
		totalBytes += t.TotalBytes
		totalRows += t.RowEstimate
		if t.HasIndexes {
			indexed++
		}
	}

	b.WriteString("\n---\n\n## Statistics\n\n")
	fmt.Fprintf(&b, "- **Total estimated rows**: %d\n", totalRows)
	fmt.Fprintf(&b, "- **Total size**: %d bytes\n", totalBytes)
	fmt.Fprintf(&b, "- **Tables with indexes**: %d of %d\n", indexed, len(tables))

	return b.String()
}

// maxDiagramTables bounds Mermaid output so large schemas stay renderable.
const maxDiagramTables = 15

var nonWord = regexp.MustCompile(`[^\w]`)

// RelationshipDiagram renders a Mermaid graph of foreign-key edges
// between the given tables.
func (g *Generator) RelationshipDiagram(tables []port.TableInfo, rels []port.Relationship) string {
	if len(tables) == 0 {
		return "graph TD\n    EMPTY[\"no tables found\"]\n"
	}
	if len(tables) > maxDiagramTables {
		tables = tables[:maxDiagramTables]
	}

	var b strings.Builder
	b.WriteString("graph TD\n")

	nodeID := make(map[string]string, len(tables))
	for i, t := range tables {
		id := fmt.Sprintf("T%d", i+1)
		nodeID[t.Name] = id
		label := t.Name
		if comment := nonWord.ReplaceAllString(t.Comment, " "); strings.TrimSpace(comment) != "" {
			label += "<br/>" + strings.TrimSpace(comment)
		}
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", id, label)
	}
	b.WriteString("\n")

	for _, r := range rels {
		parent, pok := nodeID[r.ParentTable]
		child, cok := nodeID[r.ChildTable]
		if !pok || !cok {
			continue
		}
		fmt.Fprintf(&b, "    %s -->|\"%s -> %s\"| %s\n", parent, r.ParentColumn, r.ChildColumn, child)
	}

	return b.String()
}

// RelationshipDoc renders the FK graph as a markdown document with an
// embedded Mermaid diagram.
func (g *Generator) RelationshipDoc(schema string, tables []port.TableInfo, rels []port.Relationship) string {
	var b strings.Builder

	b.WriteString("# Table Relationships\n\n")
	fmt.Fprintf(&b, "**Generated**: %s  \n", g.timestamp())
	fmt.Fprintf(&b, "**Schema**: %s  \n", schema)
	fmt.Fprintf(&b, "**Tables**: %d  \n", len(tables))
	fmt.Fprintf(&b, "**Relationships**: %d\n\n---\n\n", len(rels))

	b.WriteString("## Diagram\n\n```mermaid\n")
	b.WriteString(g.RelationshipDiagram(tables, rels))
	b.WriteString("```\n\n---\n\n## Foreign keys\n\n")

	if len(rels) == 0 {
		b.WriteString("No foreign-key relationships found.\n")
		return b.String()
	}

	b.WriteString("| # | Child table | Child column | Parent table | Parent column | Constraint |\n")
	b.WriteString("|---|-------------|--------------|--------------|---------------|------------|\n")
	for i, r := range rels {
		fmt.Fprintf(&b, "| %d | `%s` | `%s` | `%s` | `%s` | %s |\n",
			i+1, r.ChildTable, r.ChildColumn, r.ParentTable, r.ParentColumn, r.ConstraintName)
	}

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// escapePipes keeps free-text cell content from breaking markdown tables.
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
