package repository

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
	"gorm.io/gorm/clause"
)

// CreateNotification appends n. A notification whose transaction hash was
// already recorded for the same user is skipped and false is returned.
func (r *Repository) CreateNotification(ctx context.Context, n *models.Notification) (bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(n)

	if tx.Error != nil {
		return false, fmt.Errorf("failed to create notification: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *Repository) ListNotifications(ctx context.Context, userID uint, coin models.Coin) ([]*models.Notification, error) {
	var notifications []*models.Notification

	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if coin != "" {
		query = query.Where("coin = ?", coin)
	}

	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications of user %d: %w", userID, err)
	}
	return notifications, nil
}
