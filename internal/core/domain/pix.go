package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PixKeyType enumerates PIX addressing key kinds.
type PixKeyType string

const (
	PixKeyTypeCPF   PixKeyType = "CPF"
	PixKeyTypeCNPJ  PixKeyType = "CNPJ"
	PixKeyTypeEmail PixKeyType = "EMAIL"
	PixKeyTypePhone PixKeyType = "PHONE"
	PixKeyTypeEVP   PixKeyType = "EVP"
)

// PixKey is an owner's registered payout destination. Read-only here.
type PixKey struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	KeyType   PixKeyType `json:"key_type"`
	KeyValue  string     `json:"key_value"`
	CreatedAt time.Time  `json:"created_at"`
}

// Column widths for provider-supplied text. Longer values are cut to fit.
const (
	MaxEndToEndIDLen = 64
	MaxPayerNameLen  = 200
)

// Clip returns s cut to at most n characters.
func Clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// PixPayer identifies who paid an inbound charge.
type PixPayer struct {
	CPF  string `json:"cpf,omitempty"`
	CNPJ string `json:"cnpj,omitempty"`
	Name string `json:"nome,omitempty"`
}

// Document returns the payer's CPF, or CNPJ for companies.
func (p *PixPayer) Document() string {
	if p == nil {
		return ""
	}
	if p.CPF != "" {
		return p.CPF
	}
	return p.CNPJ
}

// PixPayment is a settled inbound payment as the provider reports it, both in
// callbacks and in payment listings.
type PixPayment struct {
	EndToEndID string          `json:"endToEndId"`
	ChargeID   string          `json:"txid"`
	Amount     decimal.Decimal `json:"valor"`
	PaidAt     time.Time       `json:"horario"`
	Payer      *PixPayer       `json:"pagador,omitempty"`
}

// Settlement converts the payment into the fields stored on a deposit.
func (p PixPayment) Settlement() Settlement {
	s := Settlement{
		EndToEndID:    Clip(p.EndToEndID, MaxEndToEndIDLen),
		Amount:        p.Amount,
		PaidAt:        p.PaidAt,
		PayerDocument: p.Payer.Document(),
	}
	if p.Payer != nil {
		s.PayerName = Clip(p.Payer.Name, MaxPayerNameLen)
	}
	return s
}

// PixCallback is the body the provider posts for settled charges.
type PixCallback struct {
	Payments []PixPayment `json:"pix"`
}

// ProviderCallback is a durable record of one raw callback delivery.
// PayloadHash is unique, which makes replays no-ops.
type ProviderCallback struct {
	ID          uuid.UUID  `json:"id"`
	EventType   string     `json:"event_type"`
	ExternalID  *string    `json:"external_id,omitempty"`
	Payload     []byte     `json:"-"`
	PayloadHash string     `json:"payload_hash"`
	Processed   bool       `json:"processed"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
