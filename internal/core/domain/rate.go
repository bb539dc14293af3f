package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotePlaces is the precision published rates are rounded to.
const QuotePlaces int32 = 8

// RateSnapshot is the last upstream BRL price of one USDT.
type RateSnapshot struct {
	Price     decimal.Decimal
	FetchedAt time.Time
}

// Rates is the published view of the current rate and fee spread.
type Rates struct {
	Base            decimal.Decimal `json:"base_rate"`
	Buy             decimal.Decimal `json:"buy"`
	Sell            decimal.Decimal `json:"sell"`
	FeePercent      decimal.Decimal `json:"fee_percent"`
	MinimumNotional decimal.Decimal `json:"minimum_notional"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Stale           bool            `json:"stale"`
}

// Quote is a priced exchange between the two supported currencies.
type Quote struct {
	From       Currency        `json:"from_currency"`
	To         Currency        `json:"to_currency"`
	FromAmount decimal.Decimal `json:"from_amount"`
	ToAmount   decimal.Decimal `json:"to_amount"`
	Rate       decimal.Decimal `json:"rate"`
	FeePercent decimal.Decimal `json:"fee_percent"`
}
