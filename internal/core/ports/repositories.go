package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"pixwallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned by WalletRepository.Debit when the wallet
// exists but holds less than the requested amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside the caller's transaction.
type WalletRepository interface {
	// Ensure creates the missing wallets for owner with a zero balance.
	Ensure(ctx context.Context, ownerID uuid.UUID, currencies []domain.Currency) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
	// Debit subtracts amount only if the balance covers it. Returns nil, nil
	// when the wallet does not exist.
	Debit(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error)
	// Credit adds amount. Returns nil, nil when the wallet does not exist.
	Credit(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error)
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	OwnerID  uuid.UUID
	Kind     *domain.TransactionKind
	Status   *domain.TransactionStatus
	Page     int
	PageSize int
}

// DepositRepository persists PIX charges.
type DepositRepository interface {
	Create(ctx context.Context, tx pgx.Tx, deposit *domain.Deposit) error
	GetByChargeID(ctx context.Context, chargeID string) (*domain.Deposit, error)
	GetByChargeIDForUpdate(ctx context.Context, tx pgx.Tx, chargeID string) (*domain.Deposit, error)
	// MarkCompleted stores the settlement fields carried by deposit.
	MarkCompleted(ctx context.Context, tx pgx.Tx, deposit *domain.Deposit) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListPending(ctx context.Context, ownerID uuid.UUID, since time.Time) ([]domain.Deposit, error)
	// LockExpired locks up to limit pending charges whose expiry is before now,
	// skipping rows another sweeper already holds.
	LockExpired(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]domain.Deposit, error)
}

// WithdrawalRepository persists PIX disbursements.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, withdrawal *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	// UpdateResult stores status, external id, failure reason and processed time.
	UpdateResult(ctx context.Context, tx pgx.Tx, withdrawal *domain.Withdrawal) error
}

// CallbackLogRepository stores raw provider callbacks.
type CallbackLogRepository interface {
	// Insert returns false when a callback with the same payload hash exists.
	Insert(ctx context.Context, callback *domain.ProviderCallback) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// PixKeyRepository reads owners' registered PIX keys.
type PixKeyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PixKey, error)
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
