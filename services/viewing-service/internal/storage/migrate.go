package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/md-rashed-zaman/viewings/libs/db"
)

//go:embed schema.sql
var schema string

// Migrate applies the idempotent schema. Statements run through the simple
// protocol in one round trip.
func Migrate(ctx context.Context, pool *db.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
