package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixwallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const depositColumns = `id, owner_id, charge_id, transaction_id, amount::text, status,
	payment_instruction, fallback, end_to_end_id, payer_name, payer_document_enc,
	expires_at, paid_at, created_at, updated_at`

// DepositRepo implements ports.DepositRepository.
type DepositRepo struct {
	pool Pool
}

// NewDepositRepo creates a new DepositRepo.
func NewDepositRepo(pool Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

// Create inserts a new charge within a database transaction.
func (r *DepositRepo) Create(ctx context.Context, tx pgx.Tx, d *domain.Deposit) error {
	query := `INSERT INTO deposits (id, owner_id, charge_id, transaction_id, amount, status,
		payment_instruction, fallback, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		d.ID, d.OwnerID, d.ChargeID, d.TransactionID, d.Amount.String(), d.Status,
		d.PaymentInstruction, d.Fallback, d.ExpiresAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deposit: %w", err)
	}
	return nil
}

// GetByChargeID fetches a charge without locking.
func (r *DepositRepo) GetByChargeID(ctx context.Context, chargeID string) (*domain.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE charge_id = $1`

	d, err := scanDeposit(r.pool.QueryRow(ctx, query, chargeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	return d, nil
}

// GetByChargeIDForUpdate fetches a charge and holds its row lock. Concurrent
// reconciliations of the same charge serialize here.
func (r *DepositRepo) GetByChargeIDForUpdate(ctx context.Context, tx pgx.Tx, chargeID string) (*domain.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE charge_id = $1 FOR UPDATE`

	d, err := scanDeposit(tx.QueryRow(ctx, query, chargeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get deposit for update: %w", err)
	}
	return d, nil
}

// MarkCompleted stores settlement data. The status guard keeps a completed
// charge from being settled twice even without the row lock.
func (r *DepositRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, d *domain.Deposit) error {
	query := `UPDATE deposits SET status = $1, end_to_end_id = $2, payer_name = $3,
		payer_document_enc = $4, paid_at = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7`

	tag, err := tx.Exec(ctx, query,
		domain.DepositStatusCompleted, d.EndToEndID, d.PayerName,
		d.PayerDocumentEnc, d.PaidAt, d.ID, domain.DepositStatusPending,
	)
	if err != nil {
		return fmt.Errorf("complete deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending deposit not found: %s", d.ID)
	}
	return nil
}

// MarkFailed moves a pending charge to FAILED.
func (r *DepositRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE deposits SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	tag, err := tx.Exec(ctx, query, domain.DepositStatusFailed, id, domain.DepositStatusPending)
	if err != nil {
		return fmt.Errorf("fail deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending deposit not found: %s", id)
	}
	return nil
}

// ListPending returns the owner's pending charges created after since.
func (r *DepositRepo) ListPending(ctx context.Context, ownerID uuid.UUID, since time.Time) ([]domain.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits
		WHERE owner_id = $1 AND status = $2 AND created_at >= $3
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, ownerID, domain.DepositStatusPending, since)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}
	return collectDeposits(rows)
}

// LockExpired locks pending charges past their expiry.
func (r *DepositRepo) LockExpired(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]domain.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at LIMIT $3
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, domain.DepositStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("lock expired deposits: %w", err)
	}
	return collectDeposits(rows)
}

func collectDeposits(rows pgx.Rows) ([]domain.Deposit, error) {
	defer rows.Close()

	var deposits []domain.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		deposits = append(deposits, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deposits: %w", err)
	}
	return deposits, nil
}

func scanDeposit(row pgx.Row) (*domain.Deposit, error) {
	d := &domain.Deposit{}
	var amount string
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.ChargeID, &d.TransactionID, &amount, &d.Status,
		&d.PaymentInstruction, &d.Fallback, &d.EndToEndID, &d.PayerName, &d.PayerDocumentEnc,
		&d.ExpiresAt, &d.PaidAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if d.Amount, err = parseAmount("amount", amount); err != nil {
		return nil, err
	}
	return d, nil
}
