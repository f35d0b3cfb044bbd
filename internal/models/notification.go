package models

import "time"

type NotificationType string

const (
	NotificationOrderCompleted NotificationType = "order.completed"
	NotificationOrderFailed    NotificationType = "order.failed"
)

// NotificationTimeLayout is the envelope timestamp format (UTC, millisecond precision).
const NotificationTimeLayout = "2006-01-02T15:04:05.000Z"

// Notification is the envelope written to the notifications queue.
type Notification struct {
	Type      NotificationType `json:"type"`
	Data      any              `json:"data"`
	Timestamp string           `json:"timestamp"`
	Worker    string           `json:"worker"`
}

func NewNotification(notificationType NotificationType, data any, worker string, now time.Time) Notification {
	return Notification{
		Type:      notificationType,
		Data:      data,
		Timestamp: now.UTC().Format(NotificationTimeLayout),
		Worker:    worker,
	}
}

type OrderCompletedData struct {
	OrderUUID        string  `json:"order_uuid"`
	UserID           string  `json:"user_id"`
	EventID          int64   `json:"event_id"`
	SeatID           int64   `json:"seat_id"`
	QRCodeHash       string  `json:"qr_code_hash"`
	TotalAmount      float64 `json:"total_amount"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
	CompletedAt      string  `json:"completed_at"`
}

type OrderFailedData struct {
	OrderUUID string `json:"order_uuid"`
	UserID    string `json:"user_id"`
	EventID   int64  `json:"event_id"`
	SeatID    int64  `json:"seat_id"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// OrderKey returns the order id carried by a notification payload, if any.
func (n Notification) OrderKey() string {
	switch data := n.Data.(type) {
	case OrderCompletedData:
		return data.OrderUUID
	case *OrderCompletedData:
		return data.OrderUUID
	case OrderFailedData:
		return data.OrderUUID
	case *OrderFailedData:
		return data.OrderUUID
	default:
		return ""
	}
}
