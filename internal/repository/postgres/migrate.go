package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const migrationLockKey = 72173

// Migrate applies every *.sql file at the root of fsys that is not yet
// recorded in schema_migrations, in lexical order, each in its own
// transaction. It returns the number of files applied.
//
// The advisory lock is session scoped, so the lock, every migration and the
// unlock all run on one pinned connection.
func Migrate(ctx context.Context, db *sqlx.DB, fsys fs.FS) (int, error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return 0, fmt.Errorf("error acquiring migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return 0, fmt.Errorf("error acquiring migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			log.Warn().Err(err).Msg("failed to release migration lock")
		}
	}()

	return applyPending(ctx, conn, fsys)
}

func applyPending(ctx context.Context, conn *sqlx.Conn, fsys fs.FS) (int, error) {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("error creating schema_migrations: %w", err)
	}

	names, err := migrationFiles(fsys)
	if err != nil {
		return 0, err
	}

	var applied []string
	if err := conn.SelectContext(ctx, &applied, "SELECT filename FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("error reading applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	count := 0
	for _, name := range names {
		if done[name] {
			continue
		}

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return count, fmt.Errorf("error reading migration %s: %w", name, err)
		}

		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return count, fmt.Errorf("error beginning migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("error applying migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			_ = tx.Rollback()
			return count, fmt.Errorf("error recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return count, fmt.Errorf("error committing migration %s: %w", name, err)
		}

		log.Info().Str("file", name).Msg("migration applied")
		count++
	}

	return count, nil
}

func migrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("error reading migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(path.Ext(entry.Name()), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
