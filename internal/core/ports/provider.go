package ports

//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"pixwallet/internal/core/domain"

	"github.com/shopspring/decimal"
)

// ErrProviderUnavailable wraps every failure reaching an upstream provider:
// transport errors, timeouts and non-success responses.
var ErrProviderUnavailable = errors.New("provider unavailable")

// PaymentProvider is the PIX instant-payment provider.
type PaymentProvider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Disburse(ctx context.Context, req DisbursementRequest) (*Disbursement, error)
	ListPayments(ctx context.Context, from, to time.Time) ([]domain.PixPayment, error)
}

// ChargeRequest asks the provider for an immediate charge.
type ChargeRequest struct {
	ChargeID    string
	Amount      decimal.Decimal
	PayeeKey    string
	Expiry      time.Duration
	Description string
}

// Charge is the provider's answer to a ChargeRequest.
type Charge struct {
	ChargeID           string
	PaymentInstruction string // EMV "copy and paste" payload
	Location           string
}

// DisbursementRequest sends funds to a PIX key. Reference is idempotent on
// the provider side.
type DisbursementRequest struct {
	Reference      string
	Amount         decimal.Decimal
	PayerKey       string
	DestinationKey string
}

// Disbursement is the provider's acceptance of a payout.
type Disbursement struct {
	EndToEndID string
	Status     string
}

// MarketDataSource returns the current BRL price of one USDT.
type MarketDataSource interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}
