package postgres

import (
	"context"
	"errors"
	"fmt"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, owner_id, currency, balance::text, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Ensure inserts a zero-balance wallet for each missing currency.
func (r *WalletRepo) Ensure(ctx context.Context, ownerID uuid.UUID, currencies []domain.Currency) error {
	codes := make([]string, len(currencies))
	for i, c := range currencies {
		codes[i] = string(c)
	}

	query := `INSERT INTO wallets (id, owner_id, currency, balance)
		SELECT gen_random_uuid(), $1, c, 0 FROM unnest($2::text[]) AS c
		ON CONFLICT (owner_id, currency) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, ownerID, codes); err != nil {
		return fmt.Errorf("ensure wallets: %w", err)
	}
	return nil
}

// ListByOwner returns every wallet of owner ordered by currency.
func (r *WalletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 ORDER BY currency`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return wallets, nil
}

// GetByOwner fetches one wallet without locking.
func (r *WalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 AND currency = $2`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, ownerID, string(currency)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetForUpdate fetches a wallet and holds its row lock until tx ends.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 AND currency = $2 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, ownerID, string(currency)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// Debit subtracts amount in a single conditional statement, so two
// concurrent debits can never both pass the balance check.
func (r *WalletRepo) Debit(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	query := `UPDATE wallets SET balance = balance - $1::numeric, updated_at = NOW()
		WHERE owner_id = $2 AND currency = $3 AND balance >= $1::numeric
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query, amount.String(), ownerID, string(currency)))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("debit wallet: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallets WHERE owner_id = $1 AND currency = $2)`,
		ownerID, string(currency),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check wallet: %w", err)
	}
	if exists {
		return nil, ports.ErrInsufficientBalance
	}
	return nil, nil
}

// Credit adds amount to the wallet.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	query := `UPDATE wallets SET balance = balance + $1::numeric, updated_at = NOW()
		WHERE owner_id = $2 AND currency = $3
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query, amount.String(), ownerID, string(currency)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	return w, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var balance string
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if w.Balance, err = parseAmount("balance", balance); err != nil {
		return nil, err
	}
	return w, nil
}
