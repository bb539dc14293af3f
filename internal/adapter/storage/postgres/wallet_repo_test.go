package postgres

import (
	"context"
	"errors"
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

func newTestWallet(ownerID uuid.UUID, currency domain.Currency, balance string) *domain.Wallet {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Currency:  currency,
		Balance:   decimal.RequireFromString(balance),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func walletCols() []string {
	return []string{"id", "owner_id", "currency", "balance", "created_at", "updated_at"}
}

func walletRow(w *domain.Wallet) *pgxmock.Rows {
	return pgxmock.NewRows(walletCols()).AddRow(
		w.ID, w.OwnerID, w.Currency, w.Balance.StringFixed(8), w.CreatedAt, w.UpdatedAt,
	)
}

func TestWalletRepo_Ensure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	ownerID := uuid.New()

	mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT \\(owner_id, currency\\) DO NOTHING").
		WithArgs(ownerID, []string{"BRL", "USDT"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Ensure(context.Background(), ownerID, domain.SupportedCurrencies)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ListByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	ownerID := uuid.New()
	brl := newTestWallet(ownerID, domain.CurrencyBRL, "1000.5")
	usdt := newTestWallet(ownerID, domain.CurrencyUSDT, "19.8")

	rows := pgxmock.NewRows(walletCols()).
		AddRow(brl.ID, ownerID, brl.Currency, "1000.50000000", brl.CreatedAt, brl.UpdatedAt).
		AddRow(usdt.ID, ownerID, usdt.Currency, "19.80000000", usdt.CreatedAt, usdt.UpdatedAt)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id .+ ORDER BY currency").
		WithArgs(ownerID).
		WillReturnRows(rows)

	wallets, err := repo.ListByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, domain.CurrencyBRL, wallets[0].Currency)
	assert.True(t, brl.Balance.Equal(wallets[0].Balance))
	assert.True(t, usdt.Balance.Equal(wallets[1].Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), domain.CurrencyBRL, "42.1")

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs(w.OwnerID, "BRL").
		WillReturnRows(walletRow(w))

	result, err := repo.GetByOwner(context.Background(), w.OwnerID, domain.CurrencyBRL)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.Equal(t, "42.1", result.Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByOwner_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id").
		WithArgs(pgxmock.AnyArg(), "USDT").
		WillReturnRows(pgxmock.NewRows(walletCols()))

	result, err := repo.GetByOwner(context.Background(), uuid.New(), domain.CurrencyUSDT)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), domain.CurrencyUSDT, "3")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE owner_id .+ FOR UPDATE").
		WithArgs(w.OwnerID, "USDT").
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, w.OwnerID, domain.CurrencyUSDT)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Debit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), domain.CurrencyBRL, "900")
	amount := decimal.NewFromInt(100)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance - .+ AND balance >= .+ RETURNING").
		WithArgs("100", w.OwnerID, "BRL").
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.Debit(context.Background(), tx, w.OwnerID, domain.CurrencyBRL, amount)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "900", result.Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Debit_InsufficientBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	ownerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance -").
		WithArgs("5000", ownerID, "BRL").
		WillReturnRows(pgxmock.NewRows(walletCols()))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(ownerID, "BRL").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.Debit(context.Background(), tx, ownerID, domain.CurrencyBRL, decimal.NewFromInt(5000))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ports.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Debit_WalletMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	ownerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance -").
		WithArgs("1", ownerID, "USDT").
		WillReturnRows(pgxmock.NewRows(walletCols()))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(ownerID, "USDT").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.Debit(context.Background(), tx, ownerID, domain.CurrencyUSDT, decimal.NewFromInt(1))
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Debit_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance -").
		WillReturnError(errors.New("connection reset"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, err = repo.Debit(context.Background(), tx, uuid.New(), domain.CurrencyBRL, decimal.NewFromInt(1))
	assert.ErrorContains(t, err, "debit wallet")
	assert.NotErrorIs(t, err, ports.ErrInsufficientBalance)
}

func TestWalletRepo_Credit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), domain.CurrencyUSDT, "19.8")

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance \\+").
		WithArgs("19.8", w.OwnerID, "USDT").
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.Credit(context.Background(), tx, w.OwnerID, domain.CurrencyUSDT, decimal.RequireFromString("19.8"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, w.Balance.Equal(result.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Credit_WalletMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET balance = balance \\+").
		WillReturnRows(pgxmock.NewRows(walletCols()))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.Credit(context.Background(), tx, uuid.New(), domain.CurrencyBRL, decimal.NewFromInt(1))
	assert.NoError(t, err)
	assert.Nil(t, result)
}
