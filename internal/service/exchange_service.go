package service

import (
	"context"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"

	"github.com/rs/zerolog"
)

// ExchangeServiceImpl implements ports.ExchangeService.
type ExchangeServiceImpl struct {
	rates    ports.RateService
	ledger   ports.LedgerService
	notifier ports.Notifier
	metrics  *Metrics
	log      zerolog.Logger
}

// NewExchangeService creates a new ExchangeServiceImpl.
func NewExchangeService(
	rates ports.RateService,
	ledger ports.LedgerService,
	notifier ports.Notifier,
	metrics *Metrics,
	log zerolog.Logger,
) *ExchangeServiceImpl {
	return &ExchangeServiceImpl{
		rates:    rates,
		ledger:   ledger,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
	}
}

// Quote prices req without booking it.
func (s *ExchangeServiceImpl) Quote(ctx context.Context, req ports.ExchangeRequest) (*domain.Quote, error) {
	return s.rates.Quote(ctx, req.From, req.To, req.Amount)
}

// Execute prices req and books it through the ledger.
func (s *ExchangeServiceImpl) Execute(ctx context.Context, req ports.ExchangeRequest) (*ports.ExchangeResult, error) {
	pair := string(req.From) + "_" + string(req.To)

	quote, err := s.rates.Quote(ctx, req.From, req.To, req.Amount)
	if err != nil {
		s.metrics.Exchanges.WithLabelValues(pair, "rejected").Inc()
		return nil, err
	}

	txn, err := s.ledger.Exchange(ctx, ports.LedgerExchange{
		OwnerID:    req.OwnerID,
		From:       quote.From,
		To:         quote.To,
		FromAmount: quote.FromAmount,
		ToAmount:   quote.ToAmount,
		Rate:       quote.Rate,
	})
	if err != nil {
		s.metrics.Exchanges.WithLabelValues(pair, "failed").Inc()
		return nil, err
	}
	s.metrics.Exchanges.WithLabelValues(pair, "completed").Inc()

	s.notifier.Notify(ctx, domain.NewEvent(domain.EventExchangeCompleted, req.OwnerID, map[string]interface{}{
		"transaction_id": txn.ID,
		"from_currency":  quote.From,
		"from_amount":    quote.FromAmount,
		"to_currency":    quote.To,
		"to_amount":      quote.ToAmount,
	}))

	return &ports.ExchangeResult{Transaction: txn, Quote: quote}, nil
}
