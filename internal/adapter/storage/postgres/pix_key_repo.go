package postgres

import (
	"context"
	"errors"
	"fmt"

	"pixwallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PixKeyRepo implements ports.PixKeyRepository.
type PixKeyRepo struct {
	pool Pool
}

// NewPixKeyRepo creates a new PixKeyRepo.
func NewPixKeyRepo(pool Pool) *PixKeyRepo {
	return &PixKeyRepo{pool: pool}
}

// GetByID fetches a PIX key by UUID.
func (r *PixKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PixKey, error) {
	query := `SELECT id, owner_id, key_type, key_value, created_at FROM pix_keys WHERE id = $1`

	k := &domain.PixKey{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&k.ID, &k.OwnerID, &k.KeyType, &k.KeyValue, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pix key: %w", err)
	}
	return k, nil
}
