package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/001_init.sql
var initSchema string

var migrations = []struct {
	name   string
	schema string
}{
	{"001_init", initSchema},
}

// Migrate runs all embedded schema migrations. Safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, m := range migrations {
		if err := runMigration(ctx, pool, m.name, m.schema); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		logger.Info("Migration applied", zap.String("name", m.name))
	}
	return nil
}

func runMigration(ctx context.Context, pool *pgxpool.Pool, name, schema string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range SplitSQL(schema) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement %d: %w", i+1, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit(ctx)
}

// SplitSQL 按分号拆分语句，跳过空语句和整行注释
func SplitSQL(schema string) []string {
	var out []string
	for _, raw := range strings.Split(schema, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
