package postgres

import (
	"context"
	"errors"
	"fmt"

	"pixwallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const withdrawalColumns = `id, owner_id, pix_key_id, transaction_id, amount::text, status,
	external_id, failure_reason, processed_at, created_at, updated_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a withdrawal within the transaction that debited it.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, owner_id, pix_key_id, transaction_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.OwnerID, w.PixKeyID, w.TransactionID, w.Amount.String(), w.Status,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal by UUID.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	w := &domain.Withdrawal{}
	var amount string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.OwnerID, &w.PixKeyID, &w.TransactionID, &amount, &w.Status,
		&w.ExternalID, &w.FailureReason, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	if w.Amount, err = parseAmount("amount", amount); err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateResult records the provider outcome. Only PROCESSING rows move.
func (r *WithdrawalRepo) UpdateResult(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `UPDATE withdrawals SET status = $1, external_id = $2, failure_reason = $3,
		processed_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6`

	tag, err := tx.Exec(ctx, query,
		w.Status, w.ExternalID, w.FailureReason, w.ProcessedAt, w.ID, domain.WithdrawalStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("processing withdrawal not found: %s", w.ID)
	}
	return nil
}
