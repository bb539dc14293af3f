package service

import (
	"context"
	"errors"
	"testing"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/internal/core/ports/mocks"
	"pixwallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReportingService_ListTransactions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
	svc := NewReportingService(mockTxRepo)

	ownerID := uuid.New()
	kind := domain.TransactionKindExchange
	params := ports.TransactionListParams{OwnerID: ownerID, Kind: &kind, Page: 2, PageSize: 10}
	expected := []domain.Transaction{{ID: uuid.New(), OwnerID: ownerID, Kind: kind}}

	mockTxRepo.EXPECT().List(gomock.Any(), params).Return(expected, int64(11), nil)

	txns, total, err := svc.ListTransactions(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, expected, txns)
	assert.Equal(t, int64(11), total)
}

func TestReportingService_ListTransactions_NormalizesPaging(t *testing.T) {
	ownerID := uuid.New()
	tests := map[string]struct {
		page, size         int
		wantPage, wantSize int
	}{
		"defaults":     {0, 0, 1, defaultPageSize},
		"negative":     {-3, -1, 1, defaultPageSize},
		"capped size":  {4, 500, 4, maxPageSize},
		"within range": {3, 50, 3, 50},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
			svc := NewReportingService(mockTxRepo)

			want := ports.TransactionListParams{OwnerID: ownerID, Page: tc.wantPage, PageSize: tc.wantSize}
			mockTxRepo.EXPECT().List(gomock.Any(), want).Return(nil, int64(0), nil)

			txns, total, err := svc.ListTransactions(context.Background(), ports.TransactionListParams{
				OwnerID: ownerID, Page: tc.page, PageSize: tc.size,
			})
			require.NoError(t, err)
			assert.NotNil(t, txns)
			assert.Empty(t, txns)
			assert.Zero(t, total)
		})
	}
}

func TestReportingService_ListTransactions_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
	svc := NewReportingService(mockTxRepo)

	mockTxRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, int64(0), errors.New("db down"))

	_, _, err := svc.ListTransactions(context.Background(), ports.TransactionListParams{OwnerID: uuid.New()})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}
