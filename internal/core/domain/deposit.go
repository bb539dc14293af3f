package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositStatus is the state of an inbound PIX charge.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusFailed    DepositStatus = "FAILED"
)

// Deposit is a PIX charge issued to an owner. PENDING moves to COMPLETED only
// through reconciliation, and to FAILED only through expiry.
type Deposit struct {
	ID                 uuid.UUID       `json:"id"`
	OwnerID            uuid.UUID       `json:"owner_id"`
	ChargeID           string          `json:"charge_id"`
	TransactionID      uuid.UUID       `json:"transaction_id"`
	Amount             decimal.Decimal `json:"amount"`
	Status             DepositStatus   `json:"status"`
	PaymentInstruction string          `json:"payment_instruction"`
	Fallback           bool            `json:"fallback"`
	EndToEndID         *string         `json:"end_to_end_id,omitempty"`
	PayerName          *string         `json:"payer_name,omitempty"`
	PayerDocumentEnc   *string         `json:"-"`
	ExpiresAt          time.Time       `json:"expires_at"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsPending returns true while the charge still awaits settlement.
func (d *Deposit) IsPending() bool {
	return d.Status == DepositStatusPending
}

// NewChargeID returns a 32-character alphanumeric PIX txid.
func NewChargeID() string {
	return CompactID(uuid.New())
}

// CompactID renders id without dashes.
func CompactID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// Settlement carries what the provider reported about a paid charge.
type Settlement struct {
	EndToEndID    string
	Amount        decimal.Decimal
	PaidAt        time.Time
	PayerName     string
	PayerDocument string
}
