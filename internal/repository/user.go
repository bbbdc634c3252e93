package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, "email = ?", email)
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, nil
	}
	return r.findUser(ctx, "referral_code = ?", code)
}

// GetTreasuryAdmin returns the oldest admin account. Its wallets hold the
// exchange's float.
func (r *Repository) GetTreasuryAdmin(ctx context.Context) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("is_admin = ?", true).
		Order("id ASC").
		First(&user).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treasury admin: %w", err)
	}
	return &user, nil
}

func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&users).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *Repository) findUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *Repository) UpdateUserPin(ctx context.Context, id uint, pinHash string) error {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("pin", pinHash)

	if tx.Error != nil {
		return fmt.Errorf("failed to update pin: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for pin update", id)
	}
	return nil
}

// ClaimReferrerPaid flips referrer_paid from false to true. It reports false
// when the flag was already set, so exactly one caller ever wins.
func (r *Repository) ClaimReferrerPaid(ctx context.Context, userID uint) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND referrer_paid = ?", userID, false).
		Update("referrer_paid", true)

	if tx.Error != nil {
		return false, fmt.Errorf("failed to claim referral payout for user %d: %w", userID, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// ListUnpaidReferredUsers returns users who signed up with a referral code and
// whose referrer has not been paid yet.
func (r *Repository) ListUnpaidReferredUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Where("referrer_id <> '' AND referrer_paid = ?", false).
		Order("id ASC").
		Find(&users).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid referred users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the user together with their wallets. It reports false
// when no such user exists.
func (r *Repository) DeleteUser(ctx context.Context, id uint) (bool, error) {
	deleted := false
	err := r.withTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Wallet{}).Error; err != nil {
			return fmt.Errorf("failed to delete wallets of user %d: %w", id, err)
		}

		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete user %d: %w", id, res.Error)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		r.logger.Infof("User #%d and their wallets deleted", id)
	}
	return deleted, nil
}
