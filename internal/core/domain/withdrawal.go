package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the state of an outbound PIX disbursement.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
)

// Withdrawal exists only after its amount has left the owner's wallet.
type Withdrawal struct {
	ID            uuid.UUID        `json:"id"`
	OwnerID       uuid.UUID        `json:"owner_id"`
	PixKeyID      uuid.UUID        `json:"pix_key_id"`
	TransactionID uuid.UUID        `json:"transaction_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Status        WithdrawalStatus `json:"status"`
	ExternalID    *string          `json:"external_id,omitempty"`
	FailureReason *string          `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Reference is the idempotent id sent to the provider for this disbursement.
func (w *Withdrawal) Reference() string {
	return "W" + CompactID(w.ID)
}
