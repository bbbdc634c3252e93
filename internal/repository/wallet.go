package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create %s wallet for user %d: %w", wallet.Coin, wallet.UserID, err)
	}
	return nil
}

func (r *Repository) GetWallet(ctx context.Context, userID uint, coin models.Coin) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND coin = ?", userID, coin).
		First(&wallet).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s wallet of user %d: %w", coin, userID, err)
	}
	return &wallet, nil
}
