package postgres

import (
	"context"
	"errors"
	"fmt"

	"pixwallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CallbackLogRepo implements ports.CallbackLogRepository.
type CallbackLogRepo struct {
	pool Pool
}

// NewCallbackLogRepo creates a new CallbackLogRepo.
func NewCallbackLogRepo(pool Pool) *CallbackLogRepo {
	return &CallbackLogRepo{pool: pool}
}

// Insert stores the callback unless its payload hash is already known. The
// unique index on payload_hash is what makes concurrent replays safe.
func (r *CallbackLogRepo) Insert(ctx context.Context, cb *domain.ProviderCallback) (bool, error) {
	query := `INSERT INTO webhook_logs (id, event_type, external_id, payload, payload_hash, processed, received_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		ON CONFLICT (payload_hash) DO NOTHING
		RETURNING id`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query,
		cb.ID, cb.EventType, cb.ExternalID, cb.Payload, cb.PayloadHash, cb.ReceivedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert webhook log: %w", err)
	}
	return true, nil
}

// MarkProcessed flags the callback as fully applied.
func (r *CallbackLogRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE webhook_logs SET processed = TRUE, processed_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark webhook log processed: %w", err)
	}
	return nil
}
