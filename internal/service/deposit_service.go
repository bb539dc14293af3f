package service

import (
	"context"
	"fmt"
	"time"

	"pixwallet/config"
	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"
	"pixwallet/pkg/brcode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	expireBatchSize = 100

	fallbackWarning = "The payment provider is unavailable. This payment code was generated locally " +
		"and is not registered with the provider, so it may not be payable until the provider recovers."

	settlePathWebhook = "webhook"
	settlePathVerify  = "verify"
)

// DepositSettings configures the deposit flow.
type DepositSettings struct {
	MinAmount       decimal.Decimal
	Expiry          time.Duration
	Lookback        time.Duration
	PayeeKey        string
	MerchantName    string
	MerchantCity    string
	ProviderTimeout time.Duration
}

// NewDepositSettings picks the deposit flow settings out of cfg.
func NewDepositSettings(cfg *config.Config) DepositSettings {
	return DepositSettings{
		MinAmount:       cfg.Deposit.MinAmount,
		Expiry:          cfg.Deposit.Expiry,
		Lookback:        cfg.Deposit.Lookback,
		PayeeKey:        cfg.Provider.PayeeKey,
		MerchantName:    cfg.Deposit.MerchantName,
		MerchantCity:    cfg.Deposit.MerchantCity,
		ProviderTimeout: cfg.Provider.Timeout,
	}
}

// DepositServiceImpl implements ports.DepositService.
type DepositServiceImpl struct {
	depositRepo ports.DepositRepository
	txRepo      ports.TransactionRepository
	transactor  ports.DBTransactor
	provider    ports.PaymentProvider
	settler     *Settler
	notifier    ports.Notifier
	settings    DepositSettings
	metrics     *Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// NewDepositService creates a new DepositServiceImpl.
func NewDepositService(
	depositRepo ports.DepositRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	provider ports.PaymentProvider,
	settler *Settler,
	notifier ports.Notifier,
	settings DepositSettings,
	metrics *Metrics,
	log zerolog.Logger,
) *DepositServiceImpl {
	return &DepositServiceImpl{
		depositRepo: depositRepo,
		txRepo:      txRepo,
		transactor:  transactor,
		provider:    provider,
		settler:     settler,
		notifier:    notifier,
		settings:    settings,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

// CreateDeposit registers a PIX charge for amount BRL. A provider failure
// does not fail the request: the charge is stored with a locally built
// payment code and the result carries a warning.
func (s *DepositServiceImpl) CreateDeposit(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (*ports.DepositResult, error) {
	if err := validateClientAmount(domain.CurrencyBRL, amount, s.settings.MinAmount); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	chargeID := domain.NewChargeID()
	deposit := &domain.Deposit{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		ChargeID:      chargeID,
		TransactionID: uuid.New(),
		Amount:        amount,
		Status:        domain.DepositStatusPending,
		ExpiresAt:     now.Add(s.settings.Expiry),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	result := &ports.DepositResult{Deposit: deposit}
	charge, err := s.createCharge(ctx, chargeID, amount)
	if err != nil {
		s.log.Warn().Err(err).
			Str("owner_id", ownerID.String()).
			Str("charge_id", chargeID).
			Msg("provider charge failed, issuing local payment code")
		deposit.PaymentInstruction = brcode.Static{
			Key:          s.settings.PayeeKey,
			MerchantName: s.settings.MerchantName,
			MerchantCity: s.settings.MerchantCity,
			Amount:       amount,
			TxID:         chargeID,
		}.Payload()
		deposit.Fallback = true
		result.Warning = fallbackWarning
		s.metrics.Deposits.WithLabelValues("fallback").Inc()
	} else {
		deposit.PaymentInstruction = charge.PaymentInstruction
		s.metrics.Deposits.WithLabelValues("provider").Inc()
	}

	externalID := chargeID
	txn := &domain.Transaction{
		ID:          deposit.TransactionID,
		OwnerID:     ownerID,
		Kind:        domain.TransactionKindDeposit,
		Status:      domain.TransactionStatusPending,
		Description: "PIX deposit",
		ExternalID:  &externalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	txn.SetTo(domain.CurrencyBRL, amount)

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create deposit transaction: %w", err))
	}
	if err := s.depositRepo.Create(ctx, tx, deposit); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create deposit: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit deposit: %w", err))
	}

	s.log.Info().
		Str("owner_id", ownerID.String()).
		Str("charge_id", chargeID).
		Str("amount", amount.String()).
		Bool("fallback", deposit.Fallback).
		Msg("deposit created")

	s.notifier.Notify(ctx, domain.NewEvent(domain.EventDepositCreated, ownerID, map[string]interface{}{
		"charge_id":  chargeID,
		"amount":     amount,
		"expires_at": deposit.ExpiresAt,
		"fallback":   deposit.Fallback,
	}))
	return result, nil
}

func (s *DepositServiceImpl) createCharge(ctx context.Context, chargeID string, amount decimal.Decimal) (*ports.Charge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ProviderTimeout)
	defer cancel()

	start := time.Now()
	charge, err := s.provider.CreateCharge(ctx, ports.ChargeRequest{
		ChargeID:    chargeID,
		Amount:      amount,
		PayeeKey:    s.settings.PayeeKey,
		Expiry:      s.settings.Expiry,
		Description: "Wallet deposit",
	})
	s.metrics.ProviderLatency.WithLabelValues("create_charge", resultLabel(err)).Observe(time.Since(start).Seconds())
	return charge, err
}

// VerifyDeposit asks the provider for payments made within the lookback
// window and settles the owner's pending charges they match.
func (s *DepositServiceImpl) VerifyDeposit(ctx context.Context, ownerID uuid.UUID) (int, error) {
	now := s.now().UTC()
	since := now.Add(-s.settings.Lookback)

	pending, err := s.depositRepo.ListPending(ctx, ownerID, since)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list pending deposits: %w", err))
	}
	if len(pending) == 0 {
		return 0, nil
	}

	payments, err := s.listPayments(ctx, since, now)
	if err != nil {
		return 0, apperror.ErrProviderUnavailable(err)
	}

	byCharge := make(map[string]domain.PixPayment, len(payments))
	for _, p := range payments {
		byCharge[p.ChargeID] = p
	}

	reconciled := 0
	for _, d := range pending {
		payment, ok := byCharge[d.ChargeID]
		if !ok {
			continue
		}
		completed, err := s.settler.Complete(ctx, payment, settlePathVerify)
		if err != nil {
			return reconciled, err
		}
		if completed {
			reconciled++
		}
	}

	s.log.Info().
		Str("owner_id", ownerID.String()).
		Int("pending", len(pending)).
		Int("reconciled", reconciled).
		Msg("deposit verification finished")
	return reconciled, nil
}

func (s *DepositServiceImpl) listPayments(ctx context.Context, from, to time.Time) ([]domain.PixPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ProviderTimeout)
	defer cancel()

	start := time.Now()
	payments, err := s.provider.ListPayments(ctx, from, to)
	s.metrics.ProviderLatency.WithLabelValues("list_payments", resultLabel(err)).Observe(time.Since(start).Seconds())
	return payments, err
}

// ExpireStaleDeposits fails PENDING charges whose expiry is before now,
// together with their transactions. Several sweepers may run at once; rows
// one of them holds are skipped by the others.
func (s *DepositServiceImpl) ExpireStaleDeposits(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		expired, err := s.expireBatch(ctx, now)
		if err != nil {
			return total, err
		}
		total += len(expired)

		for _, d := range expired {
			s.notifier.Notify(ctx, domain.NewEvent(domain.EventDepositExpired, d.OwnerID, map[string]interface{}{
				"charge_id": d.ChargeID,
				"amount":    d.Amount,
			}))
		}
		if len(expired) < expireBatchSize {
			break
		}
	}

	if total > 0 {
		s.metrics.DepositsSettled.WithLabelValues("expired").Add(float64(total))
		s.log.Info().Int("count", total).Msg("expired stale deposits")
	}
	return total, nil
}

func (s *DepositServiceImpl) expireBatch(ctx context.Context, now time.Time) ([]domain.Deposit, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	expired, err := s.depositRepo.LockExpired(ctx, tx, now, expireBatchSize)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	for _, d := range expired {
		if err := s.depositRepo.MarkFailed(ctx, tx, d.ID); err != nil {
			return nil, apperror.ErrDatabaseError(err)
		}
		if err := s.txRepo.UpdateStatus(ctx, tx, d.TransactionID, domain.TransactionStatusFailed); err != nil {
			return nil, apperror.ErrDatabaseError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit expiry: %w", err))
	}
	return expired, nil
}
