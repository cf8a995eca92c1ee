package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dbwarden/warden/internal/core/port"
	"github.com/dbwarden/warden/internal/core/service"
)

// Tool descriptions
const (
	descPing = "Health check. Returns \"pong\" when the server is alive."

	descSecurityInfo = "Show the active access tier and which statement categories it permits. " +
		"Call this first to learn whether write or DDL statements will be accepted."

	descListSchemas = "List all available database schemas. " +
		"Call this first to discover what schemas exist before listing tables or describing them."

	descListTables = "List all tables and views with schema, type, estimated row count, total size, column count, " +
		"and whether indexes exist. Use this to understand the database landscape: " +
		"table sizes tell you which tables are large (avoid SELECT * on them) and " +
		"row estimates help you plan queries with appropriate LIMIT clauses."

	descDescribeTable = "Describe a table's full structure: columns with types, nullability, defaults, and comments; " +
		"primary keys; foreign keys with referenced tables; indexes; check constraints; " +
		"row estimate and table size. " +
		"Use this to understand a table before writing queries. " +
		"Foreign keys show JOIN paths; check constraints show value rules."

	descDescribeTableParam = "Name of the table to describe"

	descQuery = "Execute a SQL statement and return results as a JSON array of objects. " +
		"Statements are checked against the server's access tier before execution; " +
		"rejected statements return a policy violation error. " +
		"Read statement results are cached briefly, so repeated identical queries are cheap. " +
		"A server-side row limit and query timeout are enforced. " +
		"Always use specific column names instead of SELECT *."

	descQueryParam = "SQL statement to execute"

	descExplainQuery = "Show the PostgreSQL execution plan for a SQL query. " +
		"Returns the query planner's strategy including scan types, join methods, and cost estimates. " +
		"Use this to understand query performance before or after running a query. " +
		"Supports ANALYZE to include actual execution statistics (the query WILL be executed)."

	descExplainQuerySQL = "The SELECT query to explain (without the EXPLAIN keyword)"

	descGenerateTableDoc = "Generate a structure document for one table. " +
		"Formats: markdown (design document), json (machine-readable structure), sql (reference DDL)."

	descDatabaseOverview = "Generate a markdown inventory document over all visible tables " +
		"with row estimates, sizes, and index coverage totals."

	descRelationshipDoc = "Generate a foreign-key relationship document for a schema, " +
		"including a Mermaid diagram and a table of every FK edge."

	descExportTable = "Export a table's structure and rows to an XLSX workbook. " +
		"Returns the file as base64 along with a suggested filename. " +
		"The server-side row limit applies to the exported data."

	descCacheStats = "Show result cache statistics: entry count, capacity, TTL, and cached keys."

	descClearCache = "Drop every entry from the query result cache."
)

// identPattern restricts schema/table arguments that get interpolated
// into generated SQL.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func RegisterTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("ping",
			mcp.WithDescription(descPing),
		),
		pingHandler(),
	)

	s.AddTool(
		mcp.NewTool("security_info",
			mcp.WithDescription(descSecurityInfo),
		),
		securityInfoHandler(deps.Query),
	)

	s.AddTool(
		mcp.NewTool("list_schemas",
			mcp.WithDescription(descListSchemas),
		),
		listSchemasHandler(deps.Explorer),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
		),
		listTablesHandler(deps.Explorer),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
		),
		describeTableHandler(deps.Explorer),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descQueryParam),
			),
		),
		queryHandler(deps.Query, deps.Namespace),
	)

	s.AddTool(
		mcp.NewTool("explain_query",
			mcp.WithDescription(descExplainQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descExplainQuerySQL),
			),
			mcp.WithBoolean("analyze",
				mcp.Description("Include actual execution statistics (executes the query). Defaults to false."),
			),
		),
		explainQueryHandler(deps.Query, deps.Namespace),
	)

	s.AddTool(
		mcp.NewTool("generate_table_doc",
			mcp.WithDescription(descGenerateTableDoc),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
			mcp.WithString("format",
				mcp.Description("Output format: markdown (default), json, or sql"),
			),
		),
		generateTableDocHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("database_overview",
			mcp.WithDescription(descDatabaseOverview),
		),
		databaseOverviewHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("relationship_doc",
			mcp.WithDescription(descRelationshipDoc),
			mcp.WithString("schema",
				mcp.Description("Schema name (defaults to public)"),
			),
		),
		relationshipDocHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("export_table",
			mcp.WithDescription(descExportTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description("Name of the table to export"),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
		),
		exportTableHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("cache_stats",
			mcp.WithDescription(descCacheStats),
		),
		cacheStatsHandler(deps.Query),
	)

	s.AddTool(
		mcp.NewTool("clear_cache",
			mcp.WithDescription(descClearCache),
		),
		clearCacheHandler(deps.Query),
	)
}

func pingHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	}
}

func securityInfoHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return marshalResult(query.SecurityInfo())
	}
}

func listSchemasHandler(explorer *service.ExplorerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas, err := explorer.ListSchemas(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list schemas: %v", err)), nil
		}
		return marshalResult(schemas)
	}
}

func listTablesHandler(explorer *service.ExplorerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
		}
		return marshalResult(tables)
	}
}

func describeTableHandler(explorer *service.ExplorerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)

		detail, err := explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}
		return marshalResult(detail)
	}
}

func queryHandler(query *service.QueryService, namespace string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "query")
		results, err := query.Execute(ctx, sql, namespace)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(results)
	}
}

func explainQueryHandler(query *service.QueryService, namespace string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		analyze, _ := request.GetArguments()["analyze"].(bool)

		prefix := "EXPLAIN "
		if analyze {
			prefix = "EXPLAIN ANALYZE "
		}

		ctx = service.WithToolName(ctx, "explain_query")
		results, err := query.Execute(ctx, prefix+sql, namespace)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("explain failed: %v", err)), nil
		}
		return marshalResult(results)
	}
}

func generateTableDocHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)
		format, _ := request.GetArguments()["format"].(string)
		if format == "" {
			format = "markdown"
		}

		detail, err := deps.Explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}

		switch format {
		case "markdown":
			return mcp.NewToolResultText(deps.Docs.TableStructureMarkdown(detail)), nil
		case "json":
			out, err := deps.Docs.TableStructureJSON(detail)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to render document: %v", err)), nil
			}
			return mcp.NewToolResultText(out), nil
		case "sql":
			return mcp.NewToolResultText(deps.Docs.TableDDL(detail)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown format %q: must be markdown, json, or sql", format)), nil
		}
	}
}

func databaseOverviewHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := deps.Explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
		}
		return mcp.NewToolResultText(deps.Docs.DatabaseOverview(tables)), nil
	}
}

func relationshipDocHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, _ := request.GetArguments()["schema"].(string)
		if schema == "" {
			schema = "public"
		}

		tables, err := deps.Explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
		}
		var inSchema []port.TableInfo
		for _, t := range tables {
			if t.Schema == schema {
				inSchema = append(inSchema, t)
			}
		}

		rels, err := deps.Explorer.Relationships(ctx, schema)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list relationships: %v", err)), nil
		}

		return mcp.NewToolResultText(deps.Docs.RelationshipDoc(schema, inSchema, rels)), nil
	}
}

// exportEnvelope wraps XLSX bytes for transports that only carry text.
type exportEnvelope struct {
	Filename      string `json:"filename"`
	SizeBytes     int    `json:"size_bytes"`
	RowsExported  int    `json:"rows_exported"`
	ContentBase64 string `json:"content_base64"`
}

func exportTableHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}
		if !identPattern.MatchString(tableName) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid table name %q", tableName)), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)
		if schema != "" && !identPattern.MatchString(schema) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid schema name %q", schema)), nil
		}

		detail, err := deps.Explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}

		ctx = service.WithToolName(ctx, "export_table")
		sql := fmt.Sprintf("SELECT * FROM %s.%s", detail.Schema, detail.Name)
		rows, err := deps.Query.Execute(ctx, sql, deps.Namespace)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read table rows: %v", err)), nil
		}

		data, err := deps.Docs.ExportTableXLSX(detail, rows)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to build workbook: %v", err)), nil
		}

		envelope := exportEnvelope{
			Filename:      fmt.Sprintf("%s_%s_%s.xlsx", detail.Schema, detail.Name, time.Now().Format("20060102_150405")),
			SizeBytes:     len(data),
			RowsExported:  len(rows),
			ContentBase64: base64.StdEncoding.EncodeToString(data),
		}
		return marshalResult(envelope)
	}
}

func cacheStatsHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return marshalResult(query.CacheStats())
	}
}

func clearCacheHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query.ClearCache(ctx)
		return mcp.NewToolResultText("query result cache cleared"), nil
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
