package service

import (
	"context"
	"testing"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	ownerID := uuid.New()
	done := make(chan *domain.AuditLog, 1)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			done <- log
			return nil
		},
	)

	svc.Log(context.Background(), &domain.AuditLog{
		OwnerID:      &ownerID,
		Action:       domain.AuditActionWithdrawal,
		ResourceType: "withdrawal",
		ResourceID:   uuid.New().String(),
		IPAddress:    "127.0.0.1",
	})

	select {
	case log := <-done:
		assert.Equal(t, domain.AuditActionWithdrawal, log.Action)
		assert.Equal(t, &ownerID, log.OwnerID)
		assert.NotEqual(t, uuid.Nil, log.ID)
		assert.False(t, log.CreatedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_SurvivesCancelledRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	done := make(chan error, 1)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.AuditLog) error {
			done <- ctx.Err()
			return nil
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Log(ctx, &domain.AuditLog{Action: domain.AuditActionExchange, ResourceType: "transaction"})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	ownerID := uuid.New()
	svc.Log(context.Background(), &domain.AuditLog{
		OwnerID:      &ownerID,
		Action:       domain.AuditActionSessionEnd,
		ResourceType: "session",
		IPAddress:    "127.0.0.1",
	})

	time.Sleep(50 * time.Millisecond)
}
