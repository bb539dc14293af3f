package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want Currency
		ok   bool
	}{
		{"BRL", CurrencyBRL, true},
		{" usdt ", CurrencyUSDT, true},
		{"EUR", Currency("EUR"), false},
		{"", Currency(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCurrency(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCurrency_Places(t *testing.T) {
	assert.Equal(t, int32(2), CurrencyBRL.Places())
	assert.Equal(t, int32(8), CurrencyUSDT.Places())
}

func TestTransaction_IsTerminal(t *testing.T) {
	tests := []struct {
		status TransactionStatus
		want   bool
	}{
		{TransactionStatusPending, false},
		{TransactionStatusProcessing, false},
		{TransactionStatusCompleted, true},
		{TransactionStatusFailed, true},
		{TransactionStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tx := &Transaction{Status: tt.status}
			assert.Equal(t, tt.want, tx.IsTerminal())
		})
	}
}

func TestTransaction_Sides(t *testing.T) {
	tx := &Transaction{Kind: TransactionKindExchange}
	tx.SetFrom(CurrencyBRL, decimal.NewFromInt(100))
	tx.SetTo(CurrencyUSDT, decimal.RequireFromString("19.8"))

	require.NotNil(t, tx.FromCurrency)
	assert.Equal(t, CurrencyBRL, *tx.FromCurrency)
	assert.Equal(t, "100", tx.FromAmount.String())
	assert.Equal(t, CurrencyUSDT, *tx.ToCurrency)
	assert.Equal(t, "19.8", tx.ToAmount.String())
}

func TestNewChargeID(t *testing.T) {
	a, b := NewChargeID(), NewChargeID()

	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
}

func TestWithdrawal_Reference(t *testing.T) {
	w := &Withdrawal{ID: uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")}
	assert.Equal(t, "W550e8400e29b41d4a716446655440000", w.Reference())
}

func TestPixCallback_Decode(t *testing.T) {
	body := []byte(`{"pix":[{"endToEndId":"E1234","txid":"abc123","valor":"50.00",
		"horario":"2024-05-01T12:30:00.000Z","pagador":{"cpf":"12345678909","nome":"Maria"}}]}`)

	var cb PixCallback
	require.NoError(t, json.Unmarshal(body, &cb))
	require.Len(t, cb.Payments, 1)

	p := cb.Payments[0]
	assert.Equal(t, "abc123", p.ChargeID)
	assert.True(t, decimal.NewFromInt(50).Equal(p.Amount))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), p.PaidAt.UTC())

	s := p.Settlement()
	assert.Equal(t, "E1234", s.EndToEndID)
	assert.Equal(t, "12345678909", s.PayerDocument)
	assert.Equal(t, "Maria", s.PayerName)
}

func TestPixPayer_Document(t *testing.T) {
	var nilPayer *PixPayer
	assert.Empty(t, nilPayer.Document())
	assert.Equal(t, "11222333000181", (&PixPayer{CNPJ: "11222333000181"}).Document())

	s := PixPayment{EndToEndID: "E1"}.Settlement()
	assert.Empty(t, s.PayerName)
	assert.Empty(t, s.PayerDocument)
}

func TestPixPayment_SettlementClipsProviderText(t *testing.T) {
	p := PixPayment{
		EndToEndID: strings.Repeat("E", 100),
		Payer:      &PixPayer{Name: strings.Repeat("ã", 250)},
	}
	s := p.Settlement()
	assert.Len(t, s.EndToEndID, MaxEndToEndIDLen)
	assert.Equal(t, MaxPayerNameLen, len([]rune(s.PayerName)))

	assert.Equal(t, "E1", Clip("E1", MaxEndToEndIDLen))
	assert.Equal(t, "çã", Clip("çãé", 2))
}

func TestDeposit_IsPending(t *testing.T) {
	assert.True(t, (&Deposit{Status: DepositStatusPending}).IsPending())
	assert.False(t, (&Deposit{Status: DepositStatusCompleted}).IsPending())
}

func TestNewEvent(t *testing.T) {
	owner := uuid.New()
	ev := NewEvent(EventDepositCreated, owner, map[string]string{"charge_id": "x"})

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, owner, ev.OwnerID)
	assert.Equal(t, EventDepositCreated, ev.Type)
	assert.WithinDuration(t, time.Now(), ev.OccurredAt, time.Second)
}
