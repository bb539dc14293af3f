package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports/mocks"
	"pixwallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type notificationDeps struct {
	tokens    *mocks.MockNotifyTokenStore
	hub       *mocks.MockConnectionHub
	publisher *mocks.MockEventPublisher
}

func setupNotificationService(t *testing.T) (*NotificationServiceImpl, *notificationDeps) {
	ctrl := gomock.NewController(t)
	deps := &notificationDeps{
		tokens:    mocks.NewMockNotifyTokenStore(ctrl),
		hub:       mocks.NewMockConnectionHub(ctrl),
		publisher: mocks.NewMockEventPublisher(ctrl),
	}
	svc := NewNotificationService(deps.tokens, deps.hub, deps.publisher, 30*time.Second, NewNopMetrics(), newTestLogger())
	return svc, deps
}

func TestNotificationService_Notify(t *testing.T) {
	svc, deps := setupNotificationService(t)
	ctx := context.Background()
	ownerID := uuid.New()
	event := domain.NewEvent(domain.EventDepositCompleted, ownerID, map[string]string{"charge_id": "abc"})

	deps.hub.EXPECT().Send(ownerID, gomock.Any()).DoAndReturn(func(_ uuid.UUID, frame []byte) int {
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &got))
		assert.Equal(t, "notification", got["type"])
		data := got["data"].(map[string]interface{})
		assert.Equal(t, "deposit_completed", data["event"])
		assert.Equal(t, ownerID.String(), data["owner_id"])
		return 2
	})
	deps.publisher.EXPECT().Publish(gomock.Any(), event).Return(nil)

	svc.Notify(ctx, event)
	require.NoError(t, svc.Close(ctx))
}

func TestNotificationService_Notify_FailuresAreSwallowed(t *testing.T) {
	svc, deps := setupNotificationService(t)
	ctx := context.Background()
	event := domain.NewEvent(domain.EventWithdrawalFailed, uuid.New(), nil)

	deps.hub.EXPECT().Send(gomock.Any(), gomock.Any()).Return(0)
	deps.publisher.EXPECT().Publish(gomock.Any(), event).Return(errors.New("broker down"))

	assert.NotPanics(t, func() { svc.Notify(ctx, event) })
	require.NoError(t, svc.Close(ctx))
}

func TestNotificationService_Notify_SlowBusDoesNotBlock(t *testing.T) {
	svc, deps := setupNotificationService(t)
	ownerID := uuid.New()
	release := make(chan struct{})

	deps.hub.EXPECT().Send(ownerID, gomock.Any()).Return(1).Times(3)
	var published []domain.EventType
	deps.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e domain.Event) error {
			<-release
			published = append(published, e.Type)
			return nil
		},
	).Times(3)

	start := time.Now()
	svc.Notify(context.Background(), domain.NewEvent(domain.EventWithdrawalProcessing, ownerID, nil))
	svc.Notify(context.Background(), domain.NewEvent(domain.EventWithdrawalFailed, ownerID, nil))
	svc.Notify(context.Background(), domain.NewEvent(domain.EventDepositCompleted, ownerID, nil))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, []domain.EventType{
		domain.EventWithdrawalProcessing, domain.EventWithdrawalFailed, domain.EventDepositCompleted,
	}, published)
}

func TestNotificationService_NotifyAfterClose(t *testing.T) {
	svc, deps := setupNotificationService(t)
	require.NoError(t, svc.Close(context.Background()))

	deps.hub.EXPECT().Send(gomock.Any(), gomock.Any()).Return(0)
	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), domain.NewEvent(domain.EventExchangeCompleted, uuid.New(), nil))
	})
	require.NoError(t, svc.Close(context.Background()))
}

func TestNotificationService_CloseHonoursDeadline(t *testing.T) {
	svc, deps := setupNotificationService(t)
	release := make(chan struct{})
	defer close(release)

	deps.hub.EXPECT().Send(gomock.Any(), gomock.Any()).Return(0)
	deps.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, domain.Event) error {
			<-release
			return nil
		},
	)
	svc.Notify(context.Background(), domain.NewEvent(domain.EventExchangeCompleted, uuid.New(), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Close(ctx), context.DeadlineExceeded)
}

func TestNotificationService_Notify_WithoutPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockConnectionHub(ctrl)
	svc := NewNotificationService(mocks.NewMockNotifyTokenStore(ctrl), hub, nil, time.Second, NewNopMetrics(), newTestLogger())

	hub.EXPECT().Send(gomock.Any(), gomock.Any()).Return(1)
	svc.Notify(context.Background(), domain.NewEvent(domain.EventExchangeCompleted, uuid.New(), nil))
}

func TestNotificationService_IssueToken(t *testing.T) {
	svc, deps := setupNotificationService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	var stored string
	deps.tokens.EXPECT().Issue(ctx, gomock.Any(), ownerID, 30*time.Second).DoAndReturn(
		func(_ context.Context, token string, _ uuid.UUID, _ time.Duration) error {
			stored = token
			return nil
		},
	)

	token, expiresAt, err := svc.IssueToken(ctx, ownerID)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{64}$`, token)
	assert.Equal(t, stored, token)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), expiresAt, 2*time.Second)
}

func TestNotificationService_IssueToken_StoreError(t *testing.T) {
	svc, deps := setupNotificationService(t)

	deps.tokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	_, _, err := svc.IssueToken(context.Background(), uuid.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}

func TestNotificationService_Authenticate(t *testing.T) {
	svc, deps := setupNotificationService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	gomock.InOrder(
		deps.tokens.EXPECT().Consume(ctx, "tok").Return(ownerID, true, nil),
		deps.tokens.EXPECT().Consume(ctx, "tok").Return(uuid.Nil, false, nil),
	)

	got, err := svc.Authenticate(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, ownerID, got)

	_, err = svc.Authenticate(ctx, "tok")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidToken))
}

func TestNotificationService_Authenticate_EmptyToken(t *testing.T) {
	svc, _ := setupNotificationService(t)

	_, err := svc.Authenticate(context.Background(), "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidToken))
}

func TestNotificationService_EndSession(t *testing.T) {
	svc, deps := setupNotificationService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	deps.tokens.EXPECT().RevokeOwner(ctx, ownerID).Return(2, nil)
	deps.hub.EXPECT().DisconnectOwner(ownerID).Return(1)

	require.NoError(t, svc.EndSession(ctx, ownerID))
}

func TestNotificationService_EndSession_RevokeError(t *testing.T) {
	svc, deps := setupNotificationService(t)

	deps.tokens.EXPECT().RevokeOwner(gomock.Any(), gomock.Any()).Return(0, errors.New("redis down"))

	err := svc.EndSession(context.Background(), uuid.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}
