package service

import (
	"context"
	"fmt"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WithdrawalSettings configures the withdrawal flow.
type WithdrawalSettings struct {
	MinAmount       decimal.Decimal
	PayerKey        string
	ProviderTimeout time.Duration
}

// WithdrawalServiceImpl implements ports.WithdrawalService.
type WithdrawalServiceImpl struct {
	withdrawalRepo ports.WithdrawalRepository
	txRepo         ports.TransactionRepository
	pixKeyRepo     ports.PixKeyRepository
	ledger         ports.LedgerService
	transactor     ports.DBTransactor
	provider       ports.PaymentProvider
	notifier       ports.Notifier
	settings       WithdrawalSettings
	metrics        *Metrics
	log            zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	withdrawalRepo ports.WithdrawalRepository,
	txRepo ports.TransactionRepository,
	pixKeyRepo ports.PixKeyRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	provider ports.PaymentProvider,
	notifier ports.Notifier,
	settings WithdrawalSettings,
	metrics *Metrics,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		withdrawalRepo: withdrawalRepo,
		txRepo:         txRepo,
		pixKeyRepo:     pixKeyRepo,
		ledger:         ledger,
		transactor:     transactor,
		provider:       provider,
		notifier:       notifier,
		settings:       settings,
		metrics:        metrics,
		log:            log,
	}
}

// CreateWithdrawal debits the owner's BRL wallet and sends the amount to the
// given PIX key. The debit commits before the provider is called; if the
// provider rejects the payout the debit is reversed and Refunded is set.
func (s *WithdrawalServiceImpl) CreateWithdrawal(ctx context.Context, req ports.WithdrawalRequest) (*ports.WithdrawalResult, error) {
	if err := validateClientAmount(domain.CurrencyBRL, req.Amount, s.settings.MinAmount); err != nil {
		return nil, err
	}

	key, err := s.pixKeyRepo.GetByID(ctx, req.PixKeyID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get pix key: %w", err))
	}
	if key == nil || key.OwnerID != req.OwnerID {
		return nil, apperror.ErrNotFound("pix key")
	}

	withdrawal, err := s.reserve(ctx, req)
	if err != nil {
		return nil, err
	}
	logger := s.log.With().
		Str("owner_id", req.OwnerID.String()).
		Str("withdrawal_id", withdrawal.ID.String()).
		Logger()
	logger.Info().Str("amount", req.Amount.String()).Msg("withdrawal debited")

	// The wallet is debited: the payout and its completion or refund must
	// finish even if the caller goes away.
	settleCtx := context.WithoutCancel(ctx)

	s.notify(settleCtx, domain.EventWithdrawalProcessing, withdrawal)

	disbursement, payoutErr := s.disburse(settleCtx, withdrawal, key)
	if payoutErr == nil {
		s.complete(settleCtx, logger, withdrawal, disbursement)
		return &ports.WithdrawalResult{Withdrawal: withdrawal}, nil
	}

	logger.Warn().Err(payoutErr).Msg("payout rejected, refunding")
	refunded := s.refund(settleCtx, logger, withdrawal, payoutErr)
	return &ports.WithdrawalResult{Withdrawal: withdrawal, Refunded: refunded}, nil
}

// reserve debits the wallet and records the payout as PROCESSING in one
// database transaction.
func (s *WithdrawalServiceImpl) reserve(ctx context.Context, req ports.WithdrawalRequest) (*domain.Withdrawal, error) {
	now := time.Now().UTC()
	withdrawal := &domain.Withdrawal{
		ID:            uuid.New(),
		OwnerID:       req.OwnerID,
		PixKeyID:      req.PixKeyID,
		TransactionID: uuid.New(),
		Amount:        req.Amount,
		Status:        domain.WithdrawalStatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	reference := withdrawal.Reference()
	txn := &domain.Transaction{
		ID:          withdrawal.TransactionID,
		OwnerID:     req.OwnerID,
		Kind:        domain.TransactionKindWithdrawal,
		Status:      domain.TransactionStatusProcessing,
		Description: "PIX withdrawal",
		ExternalID:  &reference,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	txn.SetFrom(domain.CurrencyBRL, req.Amount)

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := s.ledger.DebitTx(ctx, tx, req.OwnerID, domain.CurrencyBRL, req.Amount); err != nil {
		return nil, err
	}
	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal transaction: %w", err))
	}
	if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit withdrawal: %w", err))
	}
	return withdrawal, nil
}

func (s *WithdrawalServiceImpl) disburse(ctx context.Context, w *domain.Withdrawal, key *domain.PixKey) (*ports.Disbursement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ProviderTimeout)
	defer cancel()

	start := time.Now()
	d, err := s.provider.Disburse(ctx, ports.DisbursementRequest{
		Reference:      w.Reference(),
		Amount:         w.Amount,
		PayerKey:       s.settings.PayerKey,
		DestinationKey: key.KeyValue,
	})
	s.metrics.ProviderLatency.WithLabelValues("disburse", resultLabel(err)).Observe(time.Since(start).Seconds())
	return d, err
}

// complete marks an accepted payout COMPLETED. A failure here leaves the
// rows PROCESSING for operators; the money has already left.
func (s *WithdrawalServiceImpl) complete(ctx context.Context, logger zerolog.Logger, w *domain.Withdrawal, d *ports.Disbursement) {
	now := time.Now().UTC()
	w.Status = domain.WithdrawalStatusCompleted
	w.ExternalID = optionalString(d.EndToEndID)
	w.ProcessedAt = &now

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.withdrawalRepo.UpdateResult(ctx, tx, w); err != nil {
			return err
		}
		return s.txRepo.UpdateStatus(ctx, tx, w.TransactionID, domain.TransactionStatusCompleted)
	})
	if err != nil {
		logger.Error().Err(err).Str("end_to_end_id", d.EndToEndID).Msg("payout sent but completion was not recorded")
		w.Status = domain.WithdrawalStatusProcessing
		s.metrics.Withdrawals.WithLabelValues("unrecorded").Inc()
		return
	}

	s.metrics.Withdrawals.WithLabelValues("completed").Inc()
	logger.Info().Str("end_to_end_id", d.EndToEndID).Msg("withdrawal completed")
	s.notify(ctx, domain.EventWithdrawalCompleted, w)
}

// refund fails the payout and credits the amount back in one database
// transaction. It reports whether the refund committed.
func (s *WithdrawalServiceImpl) refund(ctx context.Context, logger zerolog.Logger, w *domain.Withdrawal, cause error) bool {
	now := time.Now().UTC()
	reason := cause.Error()
	w.Status = domain.WithdrawalStatusFailed
	w.FailureReason = &reason
	w.ProcessedAt = &now

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.withdrawalRepo.UpdateResult(ctx, tx, w); err != nil {
			return err
		}
		if err := s.txRepo.UpdateStatus(ctx, tx, w.TransactionID, domain.TransactionStatusFailed); err != nil {
			return err
		}
		_, err := s.ledger.CreditTx(ctx, tx, w.OwnerID, domain.CurrencyBRL, w.Amount)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Str("amount", w.Amount.String()).Msg("refund of rejected payout failed")
		w.Status = domain.WithdrawalStatusProcessing
		w.FailureReason = nil
		w.ProcessedAt = nil
		s.metrics.Withdrawals.WithLabelValues("refund_failed").Inc()
		return false
	}

	s.metrics.Withdrawals.WithLabelValues("refunded").Inc()
	logger.Info().Str("amount", w.Amount.String()).Msg("withdrawal refunded")
	s.notify(ctx, domain.EventWithdrawalFailed, w)
	return true
}

func (s *WithdrawalServiceImpl) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *WithdrawalServiceImpl) notify(ctx context.Context, t domain.EventType, w *domain.Withdrawal) {
	payload := map[string]interface{}{
		"withdrawal_id":  w.ID,
		"transaction_id": w.TransactionID,
		"amount":         w.Amount,
		"status":         w.Status,
	}
	if w.FailureReason != nil {
		payload["reason"] = *w.FailureReason
	}
	s.notifier.Notify(ctx, domain.NewEvent(t, w.OwnerID, payload))
}
