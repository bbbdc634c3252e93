package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by id %d: %w", id, err)
	}
	return &order, nil
}

func (r *Repository) ListOrders(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *Repository) ListOrdersByUser(ctx context.Context, userID uint) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list orders of user %d: %w", userID, err)
	}
	return orders, nil
}

func (r *Repository) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&orders).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list %s orders: %w", status, err)
	}
	return orders, nil
}

// ListPendingSettlements returns pending orders for which a settlement send
// has been prepared.
func (r *Repository) ListPendingSettlements(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND settlement_key <> ''", models.OrderPending).
		Order("created_at ASC").
		Find(&orders).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list pending settlements: %w", err)
	}
	return orders, nil
}

func (r *Repository) SetSettlementKey(ctx context.Context, id uint, key string) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND settlement_key = ''", id).
		Update("settlement_key", key)

	if tx.Error != nil {
		return fmt.Errorf("failed to set settlement key of order %d: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("order %d already has a settlement key", id)
	}
	return nil
}

// TransitionOrder moves the order to status `to` only if its current status
// is one of `from`. It reports whether a row was updated.
func (r *Repository) TransitionOrder(ctx context.Context, id uint, from []models.OrderStatus, to models.OrderStatus, message, txRef string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if message != "" {
		updates["message"] = message
	}
	if txRef != "" {
		updates["tx_ref"] = txRef
	}

	tx := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)

	if tx.Error != nil {
		return false, fmt.Errorf("failed to update order %d status: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}
