package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Order is the durable record of one purchase, keyed by OrderUUID.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                   int64       `bun:"id,pk,autoincrement" json:"id"`
	OrderUUID            uuid.UUID   `bun:"order_uuid,type:uuid,unique,notnull" json:"order_uuid"`
	UserID               uuid.UUID   `bun:"user_id,type:uuid,notnull" json:"user_id"`
	EventID              int64       `bun:"event_id,notnull" json:"event_id"`
	SeatID               int64       `bun:"seat_id,notnull" json:"seat_id"`
	TotalAmount          Amount      `bun:"total_amount,type:numeric(10,2),notnull" json:"total_amount"`
	Status               OrderStatus `bun:"status,notnull" json:"status"`
	QRCodeHash           string      `bun:"qr_code_hash,nullzero" json:"qr_code_hash,omitempty"`
	ProcessingComplexity int         `bun:"processing_complexity" json:"processing_complexity"`
	PaymentReference     string      `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	ErrorMessage         string      `bun:"error_message,nullzero" json:"error_message,omitempty"`
	CreatedAt            time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time   `bun:"updated_at,notnull" json:"updated_at"`
	CompletedAt          *time.Time  `bun:"completed_at" json:"completed_at,omitempty"`
}

// RoundAmount keeps two fractional digits, matching NUMERIC(10,2).
func RoundAmount(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// Amount is a money value stored as NUMERIC(10,2). SQLite hands whole
// numbers back as int64 and Postgres hands numerics back as text, so Scan
// accepts both along with floats.
type Amount float64

func NewAmount(amount float64) Amount {
	return Amount(RoundAmount(amount))
}

func (a Amount) Float64() float64 {
	return float64(a)
}

func (a *Amount) Scan(src any) error {
	var f float64
	switch v := src.(type) {
	case nil:
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case []byte:
		parsed, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("scan amount %q: %w", v, err)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("scan amount %q: %w", v, err)
		}
		f = parsed
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
	*a = NewAmount(f)
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return RoundAmount(float64(a)), nil
}
