package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbwarden/warden/internal/audit"
	"github.com/dbwarden/warden/internal/cache"
	"github.com/dbwarden/warden/internal/core/domain"
	"github.com/dbwarden/warden/internal/core/port"
	"github.com/dbwarden/warden/internal/core/service"
	"github.com/dbwarden/warden/internal/docgen"
)

// --- mock SchemaExplorer ---

type mockExplorer struct {
	schemas []port.SchemaInfo
	tables  []port.TableInfo
	detail  *port.TableDetail
	rels    []port.Relationship
	err     error
}

func (m *mockExplorer) ListSchemas(_ context.Context) ([]port.SchemaInfo, error) {
	return m.schemas, m.err
}

func (m *mockExplorer) ListTables(_ context.Context) ([]port.TableInfo, error) {
	return m.tables, m.err
}

func (m *mockExplorer) DescribeTable(_ context.Context, _, _ string) (*port.TableDetail, error) {
	return m.detail, m.err
}

func (m *mockExplorer) Relationships(_ context.Context, _ string) ([]port.Relationship, error) {
	return m.rels, m.err
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	result  []map[string]any
	err     error
	lastSQL string // captures the SQL passed to Execute
}

func (m *mockExecutor) Execute(_ context.Context, sql string) ([]map[string]any, error) {
	m.lastSQL = sql
	return m.result, m.err
}

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	defer s.UnregisterSession(ctx, session.SessionID())
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func setupServer(explorer *mockExplorer, executor *mockExecutor, tier domain.AccessTier) *server.MCPServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var querySvc *service.QueryService
	if executor != nil {
		querySvc = service.NewQueryService(
			domain.NewTierValidator(tier),
			executor,
			cache.New(10, time.Minute),
			audit.NoopAuditor{},
			logger,
			nil, nil, nil,
			tier,
		)
	}

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, Deps{
		Explorer:  service.NewExplorerService(explorer),
		Query:     querySvc,
		Docs:      docgen.New(),
		Namespace: "public",
	})
	return s
}

// --- tests ---

func TestPing(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "ping", nil)
	assert.False(t, result.IsError)
	assert.Equal(t, "pong", toolText(result))
}

func TestSecurityInfo(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{}, domain.LimitedWrite)

	result := callTool(t, s, "security_info", nil)
	text := toolText(result)

	var info service.SecurityInfo
	require.NoError(t, json.Unmarshal([]byte(text), &info))
	assert.Equal(t, "limited_write", info.AccessTier)
	assert.True(t, info.WriteAllowed)
	assert.False(t, info.DangerousAllowed)
}

func TestListSchemas(t *testing.T) {
	explorer := &mockExplorer{schemas: []port.SchemaInfo{{Name: "public"}, {Name: "sales"}}}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "list_schemas", nil)

	var schemas []port.SchemaInfo
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &schemas))
	require.Len(t, schemas, 2)
	assert.Equal(t, "sales", schemas[1].Name)
}

func TestListTables_Error(t *testing.T) {
	explorer := &mockExplorer{err: fmt.Errorf("permission denied")}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "list_tables", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "failed to list tables")
}

func TestDescribeTable_HappyPath(t *testing.T) {
	explorer := &mockExplorer{
		detail: &port.TableDetail{
			Schema:      "public",
			Name:        "users",
			RowEstimate: 1000,
			Columns: []port.ColumnInfo{
				{Name: "id", DataType: "uuid", IsPrimaryKey: true},
				{Name: "email", DataType: "text"},
			},
		},
	}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "describe_table", map[string]any{"table_name": "users"})

	var detail port.TableDetail
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &detail))
	assert.Equal(t, "users", detail.Name)
	assert.Len(t, detail.Columns, 2)
	assert.Equal(t, int64(1000), detail.RowEstimate)
}

func TestDescribeTable_MissingTableName(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "describe_table", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "table_name is required")
}

func TestQuery_HappyPath(t *testing.T) {
	executor := &mockExecutor{
		result: []map[string]any{{"id": float64(1), "name": "alice"}},
	}
	s := setupServer(&mockExplorer{}, executor, domain.ReadOnly)

	result := callTool(t, s, "query", map[string]any{"sql": "SELECT id, name FROM users"})

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["name"])
}

func TestQuery_MissingSQL(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestQuery_PolicyViolation(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(&mockExplorer{}, executor, domain.ReadOnly)

	result := callTool(t, s, "query", map[string]any{"sql": "DROP TABLE users"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "not allowed in readonly tier")
	assert.Empty(t, executor.lastSQL)
}

func TestQuery_WriteAllowedInLimitedWriteTier(t *testing.T) {
	executor := &mockExecutor{result: []map[string]any{{"rows_affected": float64(1)}}}
	s := setupServer(&mockExplorer{}, executor, domain.LimitedWrite)

	result := callTool(t, s, "query", map[string]any{"sql": "INSERT INTO t (a) VALUES (1)"})
	assert.False(t, result.IsError)
	assert.Equal(t, "INSERT INTO t (a) VALUES (1)", executor.lastSQL)
}

func TestExplainQuery(t *testing.T) {
	executor := &mockExecutor{
		result: []map[string]any{{"QUERY PLAN": "Seq Scan on users"}},
	}
	s := setupServer(&mockExplorer{}, executor, domain.ReadOnly)

	result := callTool(t, s, "explain_query", map[string]any{"sql": "SELECT id FROM users"})
	assert.False(t, result.IsError)
	assert.Equal(t, "EXPLAIN SELECT id FROM users", executor.lastSQL)
}

func TestExplainQuery_Analyze(t *testing.T) {
	executor := &mockExecutor{
		result: []map[string]any{{"QUERY PLAN": "Seq Scan on users (actual time=0.01..0.02 rows=1)"}},
	}
	s := setupServer(&mockExplorer{}, executor, domain.ReadOnly)

	result := callTool(t, s, "explain_query", map[string]any{
		"sql":     "SELECT id FROM users",
		"analyze": true,
	})
	assert.False(t, result.IsError)
	assert.Equal(t, "EXPLAIN ANALYZE SELECT id FROM users", executor.lastSQL)
}

func TestGenerateTableDoc_Markdown(t *testing.T) {
	explorer := &mockExplorer{
		detail: &port.TableDetail{
			Schema:  "public",
			Name:    "users",
			Columns: []port.ColumnInfo{{Name: "id", DataType: "bigint", IsPrimaryKey: true}},
		},
	}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "generate_table_doc", map[string]any{"table_name": "users"})
	assert.False(t, result.IsError)
	assert.Contains(t, toolText(result), "# Table Structure: public.users")
}

func TestGenerateTableDoc_SQL(t *testing.T) {
	explorer := &mockExplorer{
		detail: &port.TableDetail{
			Schema:  "public",
			Name:    "users",
			Columns: []port.ColumnInfo{{Name: "id", DataType: "bigint"}},
		},
	}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "generate_table_doc", map[string]any{"table_name": "users", "format": "sql"})
	assert.False(t, result.IsError)
	assert.Contains(t, toolText(result), "CREATE TABLE public.users")
}

func TestGenerateTableDoc_UnknownFormat(t *testing.T) {
	explorer := &mockExplorer{detail: &port.TableDetail{Schema: "public", Name: "users"}}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "generate_table_doc", map[string]any{"table_name": "users", "format": "pdf"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unknown format")
}

func TestDatabaseOverview(t *testing.T) {
	explorer := &mockExplorer{
		tables: []port.TableInfo{
			{Schema: "public", Name: "users", Type: "table", RowEstimate: 10, ColumnCount: 3},
		},
	}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "database_overview", nil)
	assert.False(t, result.IsError)
	assert.Contains(t, toolText(result), "# Database Overview")
	assert.Contains(t, toolText(result), "`users`")
}

func TestRelationshipDoc(t *testing.T) {
	explorer := &mockExplorer{
		tables: []port.TableInfo{
			{Schema: "public", Name: "orders"},
			{Schema: "public", Name: "users"},
			{Schema: "other", Name: "ignored"},
		},
		rels: []port.Relationship{
			{ChildTable: "orders", ChildColumn: "user_id", ParentTable: "users", ParentColumn: "id", ConstraintName: "orders_user_fk"},
		},
	}
	s := setupServer(explorer, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "relationship_doc", nil)
	text := toolText(result)
	assert.False(t, result.IsError)
	assert.Contains(t, text, "```mermaid")
	assert.Contains(t, text, "orders_user_fk")
	assert.NotContains(t, text, "ignored")
}

func TestExportTable(t *testing.T) {
	explorer := &mockExplorer{
		detail: &port.TableDetail{
			Schema:  "public",
			Name:    "users",
			Columns: []port.ColumnInfo{{Name: "id", DataType: "bigint"}},
		},
	}
	executor := &mockExecutor{result: []map[string]any{{"id": int64(1)}}}
	s := setupServer(explorer, executor, domain.ReadOnly)

	result := callTool(t, s, "export_table", map[string]any{"table_name": "users"})
	require.False(t, result.IsError, toolText(result))

	var envelope exportEnvelope
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &envelope))
	assert.Contains(t, envelope.Filename, "public_users_")
	assert.Equal(t, 1, envelope.RowsExported)

	data, err := base64.StdEncoding.DecodeString(envelope.ContentBase64)
	require.NoError(t, err)
	assert.Equal(t, envelope.SizeBytes, len(data))
	assert.NotEmpty(t, data)

	assert.Equal(t, "SELECT * FROM public.users", executor.lastSQL)
}

func TestExportTable_RejectsBadIdentifier(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{}, domain.ReadOnly)

	result := callTool(t, s, "export_table", map[string]any{"table_name": "users; DROP TABLE users"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "invalid table name")
}

func TestCacheAdminTools(t *testing.T) {
	executor := &mockExecutor{result: []map[string]any{{"n": float64(1)}}}
	s := setupServer(&mockExplorer{}, executor, domain.ReadOnly)

	callTool(t, s, "query", map[string]any{"sql": "SELECT 1"})

	result := callTool(t, s, "cache_stats", nil)
	var stats port.CacheStats
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &stats))
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.Capacity)

	result = callTool(t, s, "clear_cache", nil)
	assert.False(t, result.IsError)

	result = callTool(t, s, "cache_stats", nil)
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &stats))
	assert.Equal(t, 0, stats.Size)
}
