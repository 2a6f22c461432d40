package chatRepository

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/net/context"
)

// Migrate creates the message and queue tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply chat schema: %w", err)
		}
	}
	return nil
}
