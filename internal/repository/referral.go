package repository

import (
	"context"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
)

func (r *Repository) CreateReferralPayout(ctx context.Context, payout *models.ReferralPayout) error {
	if err := r.db.WithContext(ctx).Create(payout).Error; err != nil {
		return fmt.Errorf("failed to record referral payout for user %d: %w", payout.ReferredUserID, err)
	}
	return nil
}

func (r *Repository) ListReferralPayouts(ctx context.Context, referrerID uint) ([]*models.ReferralPayout, error) {
	var payouts []*models.ReferralPayout
	err := r.db.WithContext(ctx).
		Where("referrer_user_id = ?", referrerID).
		Order("created_at DESC").
		Find(&payouts).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list referral payouts of user %d: %w", referrerID, err)
	}
	return payouts, nil
}

// ListAllReferralPayouts returns every payout row, newest first. An empty
// status matches all of them.
func (r *Repository) ListAllReferralPayouts(ctx context.Context, status models.ReferralPayoutStatus) ([]*models.ReferralPayout, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var payouts []*models.ReferralPayout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("failed to list referral payouts: %w", err)
	}
	return payouts, nil
}
