package postgres

import (
	"context"
	"testing"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestExchange(ownerID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	txn := &domain.Transaction{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Kind:        domain.TransactionKindExchange,
		Status:      domain.TransactionStatusCompleted,
		Description: "BRL to USDT",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rate := decimal.NewFromInt(5)
	txn.Rate = &rate
	txn.SetFrom(domain.CurrencyBRL, decimal.NewFromInt(100))
	txn.SetTo(domain.CurrencyUSDT, decimal.RequireFromString("19.8"))
	return txn
}

func txCols() []string {
	return []string{"id", "owner_id", "kind", "status", "from_currency", "from_amount",
		"to_currency", "to_amount", "rate", "description", "external_id", "created_at", "updated_at"}
}

func txRow(t *domain.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(txCols()).AddRow(
		t.ID, t.OwnerID, t.Kind, t.Status,
		t.FromCurrency, optionalAmount(t.FromAmount),
		t.ToCurrency, optionalAmount(t.ToAmount), optionalAmount(t.Rate),
		t.Description, t.ExternalID, t.CreatedAt, t.UpdatedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestExchange(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.OwnerID, txn.Kind, txn.Status,
			txn.FromCurrency, strPtr("100"), txn.ToCurrency, strPtr("19.8"), strPtr("5"),
			txn.Description, pgxmock.AnyArg(), txn.CreatedAt, txn.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestExchange(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(txRow(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, domain.CurrencyBRL, *result.FromCurrency)
	assert.Equal(t, "100", result.FromAmount.String())
	assert.Equal(t, "19.8", result.ToAmount.String())
	assert.Equal(t, "5", result.Rate.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_DepositWithoutFromSide(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		Kind:       domain.TransactionKindDeposit,
		Status:     domain.TransactionStatusPending,
		ExternalID: strPtr("abc"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	txn.SetTo(domain.CurrencyBRL, decimal.NewFromInt(50))

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(txRow(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.FromCurrency)
	assert.Nil(t, result.FromAmount)
	assert.Nil(t, result.Rate)
	assert.Equal(t, "abc", *result.ExternalID)
	assert.Equal(t, "50", result.ToAmount.String())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(txCols()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.TransactionStatusCompleted, txID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), dbTx, txID, domain.TransactionStatusCompleted)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), dbTx, uuid.New(), domain.TransactionStatusFailed)
	assert.ErrorContains(t, err, "transaction not found")
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	ownerID := uuid.New()
	txn := newTestExchange(ownerID)
	kind := domain.TransactionKindExchange

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE owner_id = \\$1 AND kind = \\$2").
		WithArgs(ownerID, kind).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(11)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE owner_id = \\$1 AND kind = \\$2 ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(ownerID, kind, 10, 10).
		WillReturnRows(txRow(txn))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		OwnerID:  ownerID,
		Kind:     &kind,
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
