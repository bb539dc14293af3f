package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind is the kind of money movement a transaction records.
type TransactionKind string

const (
	TransactionKindDeposit    TransactionKind = "DEPOSIT"
	TransactionKindWithdrawal TransactionKind = "WITHDRAWAL"
	TransactionKindExchange   TransactionKind = "EXCHANGE"
	TransactionKindTransfer   TransactionKind = "TRANSFER"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

// Transaction is the owner-visible record of a money movement. The from side
// is set for withdrawals and exchanges, the to side for deposits and exchanges.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	OwnerID      uuid.UUID         `json:"owner_id"`
	Kind         TransactionKind   `json:"kind"`
	Status       TransactionStatus `json:"status"`
	FromCurrency *Currency         `json:"from_currency,omitempty"`
	FromAmount   *decimal.Decimal  `json:"from_amount,omitempty"`
	ToCurrency   *Currency         `json:"to_currency,omitempty"`
	ToAmount     *decimal.Decimal  `json:"to_amount,omitempty"`
	Rate         *decimal.Decimal  `json:"rate,omitempty"`
	Description  string            `json:"description"`
	ExternalID   *string           `json:"external_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// SetFrom records the debited side of the movement.
func (t *Transaction) SetFrom(c Currency, amount decimal.Decimal) {
	t.FromCurrency = &c
	t.FromAmount = &amount
}

// SetTo records the credited side of the movement.
func (t *Transaction) SetTo(c Currency, amount decimal.Decimal) {
	t.ToCurrency = &c
	t.ToAmount = &amount
}
