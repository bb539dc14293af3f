package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a wallet event pushed to the owner.
type EventType string

const (
	EventDepositCreated       EventType = "deposit_created"
	EventDepositCompleted     EventType = "deposit_completed"
	EventDepositExpired       EventType = "deposit_expired"
	EventWithdrawalProcessing EventType = "withdrawal_processing"
	EventWithdrawalCompleted  EventType = "withdrawal_completed"
	EventWithdrawalFailed     EventType = "withdrawal_failed"
	EventExchangeCompleted    EventType = "exchange_completed"
)

// Event is a best-effort notification about an owner's money movement.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       EventType   `json:"event"`
	OwnerID    uuid.UUID   `json:"owner_id"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType, ownerID uuid.UUID, payload interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OwnerID:    ownerID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
