package dto

import (
	"time"

	"pixwallet/internal/core/domain"

	"github.com/shopspring/decimal"
)

// DepositRequest is the request body for issuing a PIX charge.
type DepositRequest struct {
	Amount string `json:"amount" binding:"required,decimal_amount"`
}

// WithdrawalRequest is the request body for a PIX payout.
type WithdrawalRequest struct {
	PixKeyID string `json:"pix_key_id" binding:"required,uuid"`
	Amount   string `json:"amount" binding:"required,decimal_amount"`
}

// ExchangeRequest is the request body for quoting or executing an exchange.
type ExchangeRequest struct {
	FromCurrency string `json:"from_currency" binding:"required,currency"`
	ToCurrency   string `json:"to_currency" binding:"required,currency"`
	Amount       string `json:"amount" binding:"required,decimal_amount"`
}

// TransactionListQuery binds the filters of GET /api/v1/transactions.
type TransactionListQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Kind     string `form:"kind"`
	Status   string `form:"status"`
}

// WalletResponse is one balance of the owner.
type WalletResponse struct {
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at"`
}

// RatesResponse is the published rate view.
type RatesResponse struct {
	BaseRate        string `json:"base_rate"`
	Buy             string `json:"buy"`
	Sell            string `json:"sell"`
	FeePercent      string `json:"fee_percent"`
	MinimumNotional string `json:"minimum_notional"`
	UpdatedAt       string `json:"updated_at"`
	Stale           bool   `json:"stale,omitempty"`
}

// QuoteResponse is a priced exchange.
type QuoteResponse struct {
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	FromAmount   string `json:"from_amount"`
	ToAmount     string `json:"to_amount"`
	Rate         string `json:"rate"`
	FeePercent   string `json:"fee_percent"`
}

// ExchangeResponse is a booked exchange.
type ExchangeResponse struct {
	TransactionID string        `json:"transaction_id"`
	Status        string        `json:"status"`
	Quote         QuoteResponse `json:"quote"`
}

// DepositResponse is an issued charge.
type DepositResponse struct {
	ChargeID           string `json:"charge_id"`
	Amount             string `json:"amount"`
	PaymentInstruction string `json:"payment_instruction"`
	ExpiresAt          string `json:"expires_at"`
	Fallback           bool   `json:"fallback"`
	Warning            string `json:"warning,omitempty"`
}

// VerifyDepositResponse reports how many charges a pull reconciliation settled.
type VerifyDepositResponse struct {
	Reconciled int `json:"reconciled"`
}

// WithdrawalResponse is the outcome of a payout.
type WithdrawalResponse struct {
	WithdrawalID string `json:"withdrawal_id"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	ExternalID   string `json:"external_id,omitempty"`
	Refunded     bool   `json:"refunded,omitempty"`
	Message      string `json:"message,omitempty"`
}

// TransactionResponse is one history entry.
type TransactionResponse struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	FromCurrency *string `json:"from_currency,omitempty"`
	FromAmount   *string `json:"from_amount,omitempty"`
	ToCurrency   *string `json:"to_currency,omitempty"`
	ToAmount     *string `json:"to_amount,omitempty"`
	Rate         *string `json:"rate,omitempty"`
	Description  string  `json:"description"`
	ExternalID   *string `json:"external_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// TransactionListResponse wraps paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// NotificationTokenResponse carries a single-use channel token.
type NotificationTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// CallbackResponse acknowledges a provider callback.
type CallbackResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate"`
	Completed int  `json:"completed"`
}

// FormatTime renders t the way every response does.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewWalletResponse converts a wallet, printing the balance at the
// currency's precision.
func NewWalletResponse(w domain.Wallet) WalletResponse {
	return WalletResponse{
		Currency:  string(w.Currency),
		Balance:   w.Balance.StringFixed(w.Currency.Places()),
		UpdatedAt: FormatTime(w.UpdatedAt),
	}
}

// NewRatesResponse converts the published rates.
func NewRatesResponse(r *domain.Rates) RatesResponse {
	return RatesResponse{
		BaseRate:        r.Base.String(),
		Buy:             r.Buy.String(),
		Sell:            r.Sell.String(),
		FeePercent:      r.FeePercent.String(),
		MinimumNotional: r.MinimumNotional.String(),
		UpdatedAt:       FormatTime(r.UpdatedAt),
		Stale:           r.Stale,
	}
}

// NewQuoteResponse converts a quote.
func NewQuoteResponse(q *domain.Quote) QuoteResponse {
	return QuoteResponse{
		FromCurrency: string(q.From),
		ToCurrency:   string(q.To),
		FromAmount:   q.FromAmount.String(),
		ToAmount:     q.ToAmount.StringFixed(q.To.Places()),
		Rate:         q.Rate.String(),
		FeePercent:   q.FeePercent.String(),
	}
}

// NewTransactionResponse converts a transaction.
func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          t.ID.String(),
		Kind:        string(t.Kind),
		Status:      string(t.Status),
		Description: t.Description,
		ExternalID:  t.ExternalID,
		CreatedAt:   FormatTime(t.CreatedAt),
	}
	if t.FromCurrency != nil {
		c := string(*t.FromCurrency)
		resp.FromCurrency = &c
		resp.FromAmount = amountString(t.FromAmount, *t.FromCurrency)
	}
	if t.ToCurrency != nil {
		c := string(*t.ToCurrency)
		resp.ToCurrency = &c
		resp.ToAmount = amountString(t.ToAmount, *t.ToCurrency)
	}
	if t.Rate != nil {
		r := t.Rate.String()
		resp.Rate = &r
	}
	return resp
}

func amountString(d *decimal.Decimal, c domain.Currency) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(c.Places())
	return &s
}
