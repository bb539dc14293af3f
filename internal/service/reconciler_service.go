package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	callbackEventPix = "pix"
	callbackSeenTTL  = 24 * time.Hour
)

// ReconcilerServiceImpl implements ports.ReconcilerService.
type ReconcilerServiceImpl struct {
	callbackRepo ports.CallbackLogRepository
	seen         ports.CallbackSeenCache
	settler      *Settler
	metrics      *Metrics
	log          zerolog.Logger
}

// NewReconcilerService creates a new ReconcilerServiceImpl. seen may be nil.
func NewReconcilerService(
	callbackRepo ports.CallbackLogRepository,
	seen ports.CallbackSeenCache,
	settler *Settler,
	metrics *Metrics,
	log zerolog.Logger,
) *ReconcilerServiceImpl {
	return &ReconcilerServiceImpl{
		callbackRepo: callbackRepo,
		seen:         seen,
		settler:      settler,
		metrics:      metrics,
		log:          log,
	}
}

// HandleProviderCallback records raw exactly once, keyed by its SHA-256, and
// settles every payment it reports. Replays of a recorded body are
// acknowledged without touching any balance. Malformed bodies are recorded
// and acknowledged so the provider stops retrying them.
func (s *ReconcilerServiceImpl) HandleProviderCallback(ctx context.Context, raw []byte) (*ports.CallbackResult, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	logger := s.log.With().Str("payload_hash", hash).Logger()

	if s.seen != nil {
		if seen, err := s.seen.Seen(ctx, hash); err == nil && seen {
			s.metrics.Callbacks.WithLabelValues("duplicate").Inc()
			logger.Debug().Msg("duplicate callback (cache)")
			return &ports.CallbackResult{Duplicate: true}, nil
		}
	}

	var body domain.PixCallback
	parseErr := json.Unmarshal(raw, &body)

	record := &domain.ProviderCallback{
		ID:          uuid.New(),
		EventType:   callbackEventPix,
		Payload:     raw,
		PayloadHash: hash,
		ReceivedAt:  time.Now().UTC(),
	}
	if parseErr == nil && len(body.Payments) > 0 {
		record.ExternalID = optionalString(domain.Clip(body.Payments[0].EndToEndID, domain.MaxEndToEndIDLen))
	}

	inserted, err := s.callbackRepo.Insert(ctx, record)
	if err != nil {
		s.metrics.Callbacks.WithLabelValues("error").Inc()
		return nil, apperror.InternalError(fmt.Errorf("record callback: %w", err))
	}
	if !inserted {
		s.markSeen(ctx, logger, hash)
		s.metrics.Callbacks.WithLabelValues("duplicate").Inc()
		logger.Debug().Msg("duplicate callback")
		return &ports.CallbackResult{Duplicate: true}, nil
	}

	// Logged: settle even if the provider hangs up.
	ctx = context.WithoutCancel(ctx)

	if parseErr != nil {
		s.metrics.Callbacks.WithLabelValues("malformed").Inc()
		logger.Warn().Err(parseErr).Msg("malformed callback recorded")
		return &ports.CallbackResult{}, nil
	}

	result := &ports.CallbackResult{}
	failed := 0
	for _, payment := range body.Payments {
		completed, err := s.settler.Complete(ctx, payment, settlePathWebhook)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("charge_id", payment.ChargeID).Msg("settling callback payment failed")
			continue
		}
		if completed {
			result.Completed++
		}
	}

	if failed > 0 {
		s.metrics.Callbacks.WithLabelValues("partial").Inc()
		return result, nil
	}

	if err := s.callbackRepo.MarkProcessed(ctx, record.ID); err != nil {
		logger.Warn().Err(err).Msg("failed to mark callback processed")
	}
	s.markSeen(ctx, logger, hash)
	s.metrics.Callbacks.WithLabelValues("processed").Inc()
	logger.Info().
		Int("payments", len(body.Payments)).
		Int("completed", result.Completed).
		Msg("callback processed")
	return result, nil
}

func (s *ReconcilerServiceImpl) markSeen(ctx context.Context, logger zerolog.Logger, hash string) {
	if s.seen == nil {
		return
	}
	if err := s.seen.MarkSeen(ctx, hash, callbackSeenTTL); err != nil {
		logger.Warn().Err(err).Msg("failed to cache callback hash")
	}
}
