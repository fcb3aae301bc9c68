package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskagent/pkg/config"
)

func TestOperation(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT id FROM tasks", "select"},
		{"\n        INSERT INTO tasks (title) VALUES ($1)", "insert"},
		{"WITH moved AS (SELECT 1) UPDATE tasks SET x = 1", "update"},
		{"delete from tasks where id = $1", "delete"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Operation(tt.sql), tt.sql)
	}
}

func TestTruncateSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1 FROM tasks", truncateSQL("SELECT 1\n   FROM tasks"))

	long := "SELECT " + strings.Repeat("x", 300)
	got := truncateSQL(long)
	assert.Len(t, got, maxLoggedSQL+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSplitSQL(t *testing.T) {
	stmts := SplitSQL("-- header\nCREATE TABLE a (id INT);\n\n  ;CREATE INDEX i ON a (id);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX i ON a (id)"}, stmts)

	assert.Len(t, SplitSQL(initSchema), 8)
}

func TestDSN(t *testing.T) {
	cfg := config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", Name: "tasks"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/tasks?sslmode=disable", DSN(cfg))

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/tasks?sslmode=require", DSN(cfg))
}
