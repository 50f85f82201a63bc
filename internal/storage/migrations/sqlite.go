package migrations

import (
	"context"
	"fmt"

	"solana-pnl-bot/internal/storage/sqlite"
)

// RunSQLiteMigrations applies all embedded SQLite schema files.
// The driver accepts multiple statements per Exec.
func RunSQLiteMigrations(ctx context.Context, db *sqlite.DB) error {
	return applyEach(SQLiteFS, "sqlite", func(file, body string) error {
		if _, err := db.ExecContext(ctx, body); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		return nil
	})
}
