package repository

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
)

func (r *Repository) CreateSwap(ctx context.Context, swap *models.Swap) error {
	if err := r.db.WithContext(ctx).Create(swap).Error; err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}
	return nil
}

func (r *Repository) ListSwaps(ctx context.Context, userID uint) ([]*models.Swap, error) {
	var swaps []*models.Swap
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&swaps).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list swaps of user %d: %w", userID, err)
	}
	return swaps, nil
}
