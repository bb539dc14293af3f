package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxAmountPlaces matches the NUMERIC(28,8) balance columns.
const maxAmountPlaces = 8

// LedgerServiceImpl implements ports.LedgerService. Every balance change in
// the system goes through it.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// ProvisionWallets creates any missing wallet of owner and returns all of them.
func (s *LedgerServiceImpl) ProvisionWallets(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	if err := s.walletRepo.Ensure(ctx, ownerID, domain.SupportedCurrencies); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("provision wallets: %w", err))
	}
	return s.GetBalances(ctx, ownerID)
}

// GetBalances lists the owner's wallets.
func (s *LedgerServiceImpl) GetBalances(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.walletRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list wallets: %w", err))
	}
	return wallets, nil
}

// GetBalance reads one balance without locking.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	if !currency.IsSupported() {
		return decimal.Zero, apperror.ErrUnsupportedCurrency(string(currency))
	}
	w, err := s.walletRepo.GetByOwner(ctx, ownerID, currency)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return decimal.Zero, apperror.ErrNotFound("wallet")
	}
	return w.Balance, nil
}

// Credit adds amount in its own transaction.
func (s *LedgerServiceImpl) Credit(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.Wallet, error) {
		return s.CreditTx(ctx, tx, ownerID, currency, amount)
	})
}

// Debit subtracts amount in its own transaction.
func (s *LedgerServiceImpl) Debit(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.Wallet, error) {
		return s.DebitTx(ctx, tx, ownerID, currency, amount)
	})
}

func (s *LedgerServiceImpl) inTx(ctx context.Context, fn func(pgx.Tx) (*domain.Wallet, error)) (*domain.Wallet, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	w, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return w, nil
}

// CreditTx adds amount inside tx.
func (s *LedgerServiceImpl) CreditTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	if err := validateMovement(currency, amount); err != nil {
		return nil, err
	}
	w, err := s.walletRepo.Credit(ctx, tx, ownerID, currency, amount)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("credit %s: %w", currency, err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return w, nil
}

// DebitTx subtracts amount inside tx. The check and the update are one
// conditional statement, so concurrent debits cannot overdraw the wallet.
func (s *LedgerServiceImpl) DebitTx(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	if err := validateMovement(currency, amount); err != nil {
		return nil, err
	}
	w, err := s.walletRepo.Debit(ctx, tx, ownerID, currency, amount)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientBalance) {
			return nil, apperror.ErrInsufficientFunds()
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("debit %s: %w", currency, err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return w, nil
}

// Exchange debits req.From and credits req.To in one transaction and books a
// completed EXCHANGE transaction. Both wallets are locked in currency order
// so opposite-direction exchanges of one owner cannot deadlock.
func (s *LedgerServiceImpl) Exchange(ctx context.Context, req ports.LedgerExchange) (*domain.Transaction, error) {
	if req.From == req.To {
		return nil, apperror.Validation("from and to currencies must differ")
	}
	if err := validateMovement(req.From, req.FromAmount); err != nil {
		return nil, err
	}
	if err := validateMovement(req.To, req.ToAmount); err != nil {
		return nil, err
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	locked := []domain.Currency{req.From, req.To}
	sort.Slice(locked, func(i, j int) bool { return locked[i] < locked[j] })
	for _, c := range locked {
		w, err := s.walletRepo.GetForUpdate(ctx, tx, req.OwnerID, c)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("lock %s wallet: %w", c, err))
		}
		if w == nil {
			return nil, apperror.ErrNotFound("wallet")
		}
	}

	if _, err := s.DebitTx(ctx, tx, req.OwnerID, req.From, req.FromAmount); err != nil {
		return nil, err
	}
	if _, err := s.CreditTx(ctx, tx, req.OwnerID, req.To, req.ToAmount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rate := req.Rate
	txn := &domain.Transaction{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		Kind:        domain.TransactionKindExchange,
		Status:      domain.TransactionStatusCompleted,
		Rate:        &rate,
		Description: fmt.Sprintf("Exchange %s to %s", req.From, req.To),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	txn.SetFrom(req.From, req.FromAmount)
	txn.SetTo(req.To, req.ToAmount)

	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create exchange transaction: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit exchange: %w", err))
	}

	s.log.Info().
		Str("owner_id", req.OwnerID.String()).
		Str("tx_id", txn.ID.String()).
		Str("from", req.FromAmount.String()+" "+string(req.From)).
		Str("to", req.ToAmount.String()+" "+string(req.To)).
		Msg("exchange booked")

	return txn, nil
}

func validateMovement(currency domain.Currency, amount decimal.Decimal) error {
	if !currency.IsSupported() {
		return apperror.ErrUnsupportedCurrency(string(currency))
	}
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	if !amount.Equal(amount.Truncate(maxAmountPlaces)) {
		return apperror.Validation(fmt.Sprintf("amount has more than %d decimal places", maxAmountPlaces))
	}
	return nil
}

// validateClientAmount applies the per-currency precision a client may use.
func validateClientAmount(currency domain.Currency, amount, minimum decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	places := currency.Places()
	if !amount.Equal(amount.Truncate(places)) {
		return apperror.Validation(fmt.Sprintf("%s amounts accept at most %d decimal places", currency, places))
	}
	if amount.LessThan(minimum) {
		return apperror.Validation(fmt.Sprintf("minimum amount is %s %s", minimum.StringFixed(places), currency))
	}
	return nil
}
