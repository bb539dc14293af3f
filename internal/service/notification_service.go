package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	notifyTokenBytes = 32

	publishQueueSize = 1024
	publishTimeout   = 5 * time.Second
)

// envelope is the frame pushed to notification channel clients.
type envelope struct {
	Type string       `json:"type"`
	Data domain.Event `json:"data"`
}

// NotificationServiceImpl implements ports.NotificationService.
type NotificationServiceImpl struct {
	tokens    ports.NotifyTokenStore
	hub       ports.ConnectionHub
	publisher ports.EventPublisher
	tokenTTL  time.Duration
	metrics   *Metrics
	log       zerolog.Logger

	// Bus publishing runs on one background worker so events keep their
	// order and a slow broker never holds up a money flow.
	mu      sync.RWMutex
	closed  bool
	queue   chan domain.Event
	drained chan struct{}
}

// NewNotificationService creates a new NotificationServiceImpl. publisher may
// be nil when no message bus is configured.
func NewNotificationService(
	tokens ports.NotifyTokenStore,
	hub ports.ConnectionHub,
	publisher ports.EventPublisher,
	tokenTTL time.Duration,
	metrics *Metrics,
	log zerolog.Logger,
) *NotificationServiceImpl {
	s := &NotificationServiceImpl{
		tokens:    tokens,
		hub:       hub,
		publisher: publisher,
		tokenTTL:  tokenTTL,
		metrics:   metrics,
		log:       log,
		drained:   make(chan struct{}),
	}
	if publisher == nil {
		close(s.drained)
		return s
	}
	s.queue = make(chan domain.Event, publishQueueSize)
	go s.publishLoop()
	return s
}

// Notify pushes event to the owner's live connections and queues it for the
// message bus. It never blocks on the bus; failures are logged.
func (s *NotificationServiceImpl) Notify(_ context.Context, event domain.Event) {
	s.metrics.Notifications.WithLabelValues(string(event.Type)).Inc()

	frame, err := json.Marshal(envelope{Type: "notification", Data: event})
	if err != nil {
		s.log.Error().Err(err).Str("event", string(event.Type)).Msg("failed to encode notification")
		return
	}

	delivered := s.hub.Send(event.OwnerID, frame)
	s.log.Debug().
		Str("owner_id", event.OwnerID.String()).
		Str("event", string(event.Type)).
		Int("connections", delivered).
		Msg("notification sent")

	if s.publisher == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- event:
	default:
		s.log.Warn().Str("event", string(event.Type)).Msg("event queue full, dropping event")
	}
}

func (s *NotificationServiceImpl) publishLoop() {
	defer close(s.drained)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish event")
		}
		cancel()
	}
}

// Close stops accepting bus events and waits until the queued ones are
// published or ctx ends.
func (s *NotificationServiceImpl) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed && s.queue != nil {
		close(s.queue)
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IssueToken returns a random single-use token that opens one notification
// connection for owner before it expires.
func (s *NotificationServiceImpl) IssueToken(ctx context.Context, ownerID uuid.UUID) (string, time.Time, error) {
	buf := make([]byte, notifyTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	token := hex.EncodeToString(buf)
	expiresAt := time.Now().UTC().Add(s.tokenTTL)

	if err := s.tokens.Issue(ctx, token, ownerID, s.tokenTTL); err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("store token: %w", err))
	}
	return token, expiresAt, nil
}

// Authenticate consumes token and returns its owner. A token works once.
func (s *NotificationServiceImpl) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, apperror.ErrInvalidToken()
	}
	ownerID, ok, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return uuid.Nil, apperror.InternalError(fmt.Errorf("consume token: %w", err))
	}
	if !ok {
		return uuid.Nil, apperror.ErrInvalidToken()
	}
	return ownerID, nil
}

// EndSession revokes the owner's outstanding tokens and closes their
// connections.
func (s *NotificationServiceImpl) EndSession(ctx context.Context, ownerID uuid.UUID) error {
	revoked, err := s.tokens.RevokeOwner(ctx, ownerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("revoke tokens: %w", err))
	}
	closed := s.hub.DisconnectOwner(ownerID)
	s.log.Info().
		Str("owner_id", ownerID.String()).
		Int("tokens_revoked", revoked).
		Int("connections_closed", closed).
		Msg("notification session ended")
	return nil
}
