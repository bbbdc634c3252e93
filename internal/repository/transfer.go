package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetTransfer(ctx context.Context, key string) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&transfer).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer %s: %w", key, err)
	}
	return &transfer, nil
}

// SaveTransfer upserts by idempotency key.
func (r *Repository) SaveTransfer(ctx context.Context, t *models.Transfer) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "tx_ref", "error", "updated_at"}),
		}).
		Create(t).
		Error

	if err != nil {
		return fmt.Errorf("failed to save transfer %s: %w", t.IdempotencyKey, err)
	}
	return nil
}
