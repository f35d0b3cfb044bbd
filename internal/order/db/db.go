package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-order-worker/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrOrderNotFound is returned by FindOrder when no row matches the order uuid.
var ErrOrderNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// FindOrder fetches one order by its business key.
func (d *DB) FindOrder(ctx context.Context, orderUUID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&order).
			Where("order_uuid = ?", orderUUID).
			Limit(1).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderUUID, err)
	}
	return &order, nil
}

// UpsertOrder inserts the order or, when the order uuid already exists,
// overwrites its mutable columns. Each call commits on its own.
func (d *DB) UpsertOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	order.TotalAmount = models.NewAmount(order.TotalAmount.Float64())

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(order).
			On("CONFLICT (order_uuid) DO UPDATE").
			Set("user_id = EXCLUDED.user_id").
			Set("event_id = EXCLUDED.event_id").
			Set("seat_id = EXCLUDED.seat_id").
			Set("total_amount = EXCLUDED.total_amount").
			Set("status = EXCLUDED.status").
			Set("qr_code_hash = EXCLUDED.qr_code_hash").
			Set("processing_complexity = EXCLUDED.processing_complexity").
			Set("payment_reference = EXCLUDED.payment_reference").
			Set("error_message = EXCLUDED.error_message").
			Set("updated_at = EXCLUDED.updated_at").
			Set("completed_at = EXCLUDED.completed_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", order.OrderUUID, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}
