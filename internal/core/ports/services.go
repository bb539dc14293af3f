package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"pixwallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService validates bearer tokens issued by the identity service.
type TokenService interface {
	Generate(ownerID uuid.UUID, ttl time.Duration) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OwnerID uuid.UUID
}

// NotifyTokenStore keeps single-use notification channel tokens.
type NotifyTokenStore interface {
	Issue(ctx context.Context, token string, ownerID uuid.UUID, ttl time.Duration) error
	// Consume atomically removes token. ok is false if it was unknown or expired.
	Consume(ctx context.Context, token string) (ownerID uuid.UUID, ok bool, err error)
	// RevokeOwner removes every outstanding token of owner.
	RevokeOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

// CallbackSeenCache is the Redis fast path for duplicate provider callbacks.
type CallbackSeenCache interface {
	Seen(ctx context.Context, payloadHash string) (bool, error)
	MarkSeen(ctx context.Context, payloadHash string, ttl time.Duration) error
}

// EventPublisher forwards wallet events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

// ConnectionHub is the registry of live notification connections.
type ConnectionHub interface {
	// Send delivers payload to every connection of owner and returns how many
	// accepted it.
	Send(ownerID uuid.UUID, payload []byte) int
	// DisconnectOwner closes every connection of owner.
	DisconnectOwner(ownerID uuid.UUID) int
}

// Notifier delivers events to owners. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}

// --- Service Ports (Business Logic) ---

// LedgerService is the only writer of wallet balances.
type LedgerService interface {
	ProvisionWallets(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	GetBalances(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	GetBalance(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (decimal.Decimal, error)
	Credit(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error)
	Debit(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error)
	// CreditTx and DebitTx apply the same primitives inside the caller's
	// transaction.
	CreditTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error)
	DebitTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error)
	Exchange(ctx context.Context, req LedgerExchange) (*domain.Transaction, error)
}

// LedgerExchange is a priced exchange ready to be booked.
type LedgerExchange struct {
	OwnerID    uuid.UUID
	From       domain.Currency
	To         domain.Currency
	FromAmount decimal.Decimal
	ToAmount   decimal.Decimal
	Rate       decimal.Decimal
}

// RateService is the cached USDT/BRL rate oracle.
type RateService interface {
	GetBaseRate(ctx context.Context) (*domain.RateSnapshot, error)
	GetRates(ctx context.Context) (*domain.Rates, error)
	Quote(ctx context.Context, from, to domain.Currency, amount decimal.Decimal) (*domain.Quote, error)
}

// ExchangeService prices and books currency exchanges.
type ExchangeService interface {
	Quote(ctx context.Context, req ExchangeRequest) (*domain.Quote, error)
	Execute(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error)
}

// ExchangeRequest holds validated input for an exchange.
type ExchangeRequest struct {
	OwnerID uuid.UUID
	From    domain.Currency
	To      domain.Currency
	Amount  decimal.Decimal
}

// ExchangeResult is a booked exchange and the quote it used.
type ExchangeResult struct {
	Transaction *domain.Transaction
	Quote       *domain.Quote
}

// DepositService issues PIX charges and reconciles them on demand.
type DepositService interface {
	CreateDeposit(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (*DepositResult, error)
	VerifyDeposit(ctx context.Context, ownerID uuid.UUID) (int, error)
	ExpireStaleDeposits(ctx context.Context, now time.Time) (int, error)
}

// DepositResult is a created charge. Warning is set when the payment
// instruction was built locally instead of by the provider.
type DepositResult struct {
	Deposit *domain.Deposit
	Warning string
}

// WithdrawalService debits, disburses and compensates PIX payouts.
type WithdrawalService interface {
	CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error)
}

// WithdrawalRequest holds validated input for a payout.
type WithdrawalRequest struct {
	OwnerID  uuid.UUID
	PixKeyID uuid.UUID
	Amount   decimal.Decimal
}

// WithdrawalResult reports the payout outcome. Refunded is true when the
// provider rejected it and the debit was reversed.
type WithdrawalResult struct {
	Withdrawal *domain.Withdrawal
	Refunded   bool
}

// ReconcilerService ingests provider callbacks.
type ReconcilerService interface {
	HandleProviderCallback(ctx context.Context, raw []byte) (*CallbackResult, error)
}

// CallbackResult summarizes one callback delivery.
type CallbackResult struct {
	Duplicate bool
	Completed int
}

// NotificationService manages the real-time notification channel.
type NotificationService interface {
	Notifier
	IssueToken(ctx context.Context, ownerID uuid.UUID) (string, time.Time, error)
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
	EndSession(ctx context.Context, ownerID uuid.UUID) error
}

// ReportingService serves read-only history.
type ReportingService interface {
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// AuditService records audited actions without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
