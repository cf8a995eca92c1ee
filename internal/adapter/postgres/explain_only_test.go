package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureExecutor struct {
	lastSQL string
}

func (c *captureExecutor) Execute(_ context.Context, sql string) ([]map[string]any, error) {
	c.lastSQL = sql
	return []map[string]any{{"QUERY PLAN": "Seq Scan"}}, nil
}

func TestExplainOnly_PrefixesSelect(t *testing.T) {
	inner := &captureExecutor{}
	exec := NewExplainOnlyExecutor(inner)

	_, err := exec.Execute(context.Background(), "SELECT * FROM users")
	require.NoError(t, err)
	assert.Equal(t, "EXPLAIN SELECT * FROM users", inner.lastSQL)
}

func TestExplainOnly_LeavesExplainAlone(t *testing.T) {
	inner := &captureExecutor{}
	exec := NewExplainOnlyExecutor(inner)

	_, err := exec.Execute(context.Background(), "EXPLAIN SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "EXPLAIN SELECT 1", inner.lastSQL)
}

func TestExplainOnly_RefusesWrites(t *testing.T) {
	inner := &captureExecutor{}
	exec := NewExplainOnlyExecutor(inner)

	_, err := exec.Execute(context.Background(), "INSERT INTO t VALUES (1)")
	require.Error(t, err)
	assert.Empty(t, inner.lastSQL)
}
