package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	DefaultProcessingComplexity = 5
	DefaultPriority             = 5
)

var (
	// ErrMalformedMessage marks a payload that cannot be decoded as an OrderMessage.
	ErrMalformedMessage = errors.New("malformed order message")
	// ErrInvalidIdentifiers marks a decoded message whose order or user id is unusable.
	ErrInvalidIdentifiers = errors.New("invalid order identifiers")
)

// OrderMessage is one order intent as published on the orders queue.
type OrderMessage struct {
	OrderUUID            string          `json:"order_uuid"`
	UserID               string          `json:"user_id"`
	EventID              int64           `json:"event_id"`
	SeatID               int64           `json:"seat_id"`
	TotalAmount          float64         `json:"total_amount"`
	ProcessingComplexity int             `json:"processing_complexity"`
	Timestamp            string          `json:"timestamp"`
	PaymentMethod        *string         `json:"payment_method,omitempty"`
	PaymentReference     *string         `json:"payment_reference,omitempty"`
	RetryCount           int             `json:"retry_count"`
	Priority             int             `json:"priority"`
	ClientMetadata       json.RawMessage `json:"client_metadata,omitempty"`
}

// ParseOrderMessage decodes a delivery body, applying the documented defaults
// for fields the producer left out.
func ParseOrderMessage(body []byte) (OrderMessage, error) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return OrderMessage{}, fmt.Errorf("%w: body must be a JSON object", ErrMalformedMessage)
	}

	msg := OrderMessage{
		ProcessingComplexity: DefaultProcessingComplexity,
		Priority:             DefaultPriority,
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return OrderMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(msg.ClientMetadata) > 0 && msg.ClientMetadata[0] != '{' && string(msg.ClientMetadata) != "null" {
		return OrderMessage{}, fmt.Errorf("%w: client_metadata must be an object", ErrMalformedMessage)
	}
	return msg, nil
}

// OrderIdentity holds the parsed identifiers of a message.
type OrderIdentity struct {
	OrderUUID uuid.UUID
	UserID    uuid.UUID
}

// Validate checks the business identifiers. It never touches storage.
func (m OrderMessage) Validate() (OrderIdentity, error) {
	if m.OrderUUID == "" || m.UserID == "" {
		return OrderIdentity{}, fmt.Errorf("%w: missing order_uuid or user_id", ErrInvalidIdentifiers)
	}

	orderUUID, err := uuid.Parse(m.OrderUUID)
	if err != nil {
		return OrderIdentity{}, fmt.Errorf("%w: order_uuid: %v", ErrInvalidIdentifiers, err)
	}
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return OrderIdentity{}, fmt.Errorf("%w: user_id: %v", ErrInvalidIdentifiers, err)
	}

	return OrderIdentity{OrderUUID: orderUUID, UserID: userID}, nil
}

// PaymentRef returns the payment reference or "" when absent.
func (m OrderMessage) PaymentRef() string {
	if m.PaymentReference == nil {
		return ""
	}
	return *m.PaymentReference
}
