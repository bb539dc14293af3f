package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is an ISO-like code for a balance the custodian holds.
type Currency string

const (
	CurrencyBRL  Currency = "BRL"  // fiat, settled over PIX
	CurrencyUSDT Currency = "USDT" // digital asset
)

// SupportedCurrencies lists every currency a wallet can be provisioned in.
var SupportedCurrencies = []Currency{CurrencyBRL, CurrencyUSDT}

// ParseCurrency normalizes s and reports whether it is supported.
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.IsSupported()
}

// IsSupported returns true for currencies listed in SupportedCurrencies.
func (c Currency) IsSupported() bool {
	for _, s := range SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}

// Places is the number of fractional digits a client may submit.
func (c Currency) Places() int32 {
	if c == CurrencyBRL {
		return 2
	}
	return 8
}

// Wallet is an owner's balance in one currency. Balance never goes negative.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Currency  Currency        `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
