// Package migrations embeds the SQL schema applied by the migrate command.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// FS holds the migration files.
//
//go:embed *.sql
var FS embed.FS

// Files lists the migrations in the order they must be applied.
var Files = []string{
	"001_create_transformations.sql",
	"002_create_tasks.sql",
	"003_create_job_logging.sql",
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply runs every migration in order. The statements are idempotent.
func Apply(ctx context.Context, db Execer) error {
	for _, name := range Files {
		sql, err := FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return nil
}
