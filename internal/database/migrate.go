package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate executes every <name>.<direction>.sql file in dir, each in its own
// transaction: ascending name order for up, descending for down. It returns
// the names it ran.
func Migrate(ctx context.Context, db *sql.DB, dir, direction string) ([]string, error) {
	if direction != MigrateUp && direction != MigrateDown {
		return nil, fmt.Errorf("direction must be %q or %q, got %q", MigrateUp, MigrateDown, direction)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	suffix := "." + direction + ".sql"
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	if direction == MigrateDown {
		slices.Reverse(files)
	}

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}
		err = WithTransaction(ctx, db, DefaultTxOptions(), func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, string(content))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	return files, nil
}
