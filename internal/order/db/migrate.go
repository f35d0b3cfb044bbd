package db

import (
	"context"

	"ms-order-worker/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the orders table from the bun model. Production
// databases are migrated with the SQL files under migrations/; this is used
// for throwaway databases.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*models.Order)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}
