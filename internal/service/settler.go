package service

import (
	"context"
	"fmt"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// Settler completes PENDING charges from provider payment reports. Both the
// webhook and the client-triggered verification go through Complete, which
// is the only code that moves a charge to COMPLETED.
type Settler struct {
	depositRepo ports.DepositRepository
	txRepo      ports.TransactionRepository
	ledger      ports.LedgerService
	transactor  ports.DBTransactor
	encSvc      ports.EncryptionService
	notifier    ports.Notifier
	metrics     *Metrics
	log         zerolog.Logger
}

// NewSettler creates a new Settler.
func NewSettler(
	depositRepo ports.DepositRepository,
	txRepo ports.TransactionRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	encSvc ports.EncryptionService,
	notifier ports.Notifier,
	metrics *Metrics,
	log zerolog.Logger,
) *Settler {
	return &Settler{
		depositRepo: depositRepo,
		txRepo:      txRepo,
		ledger:      ledger,
		transactor:  transactor,
		encSvc:      encSvc,
		notifier:    notifier,
		metrics:     metrics,
		log:         log,
	}
}

// Complete credits the charge named by payment if it is still PENDING. It
// returns false without error for unknown or already settled charges.
func (s *Settler) Complete(ctx context.Context, payment domain.PixPayment, path string) (bool, error) {
	settlement := payment.Settlement()
	logger := s.log.With().
		Str("charge_id", payment.ChargeID).
		Str("end_to_end_id", settlement.EndToEndID).
		Logger()

	if !settlement.Amount.IsPositive() {
		logger.Warn().Str("amount", settlement.Amount.String()).Msg("ignoring payment with non-positive amount")
		return false, nil
	}

	var docEnc *string
	if settlement.PayerDocument != "" {
		enc, err := s.encSvc.Encrypt(settlement.PayerDocument)
		if err != nil {
			return false, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt payer document: %w", err))
		}
		docEnc = &enc
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deposit, err := s.depositRepo.GetByChargeIDForUpdate(ctx, tx, payment.ChargeID)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("lock deposit: %w", err))
	}
	if deposit == nil {
		logger.Debug().Msg("payment for unknown charge")
		return false, nil
	}
	if !deposit.IsPending() {
		logger.Debug().Str("status", string(deposit.Status)).Msg("charge already settled")
		return false, nil
	}

	if !settlement.Amount.Equal(deposit.Amount) {
		logger.Warn().
			Str("charged", deposit.Amount.String()).
			Str("paid", settlement.Amount.String()).
			Msg("settled amount differs from charge, crediting settled amount")
	}

	paidAt := settlement.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	deposit.Status = domain.DepositStatusCompleted
	deposit.EndToEndID = optionalString(settlement.EndToEndID)
	deposit.PayerName = optionalString(settlement.PayerName)
	deposit.PayerDocumentEnc = docEnc
	deposit.PaidAt = &paidAt

	if err := s.depositRepo.MarkCompleted(ctx, tx, deposit); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("complete deposit: %w", err))
	}
	if _, err := s.ledger.CreditTx(ctx, tx, deposit.OwnerID, domain.CurrencyBRL, settlement.Amount); err != nil {
		return false, err
	}
	if err := s.txRepo.UpdateStatus(ctx, tx, deposit.TransactionID, domain.TransactionStatusCompleted); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("complete deposit transaction: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("commit deposit: %w", err))
	}

	s.metrics.DepositsSettled.WithLabelValues(path).Inc()
	logger.Info().
		Str("owner_id", deposit.OwnerID.String()).
		Str("amount", settlement.Amount.String()).
		Str("path", path).
		Msg("deposit completed")

	s.notifier.Notify(ctx, domain.NewEvent(domain.EventDepositCompleted, deposit.OwnerID, map[string]interface{}{
		"charge_id":      deposit.ChargeID,
		"transaction_id": deposit.TransactionID,
		"amount":         settlement.Amount,
		"paid_at":        paidAt,
	}))
	return true, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
