package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/coin_exchange/internal/models"
	"gorm.io/gorm"
)

const settingsRowID = 1

func (r *Repository) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := r.db.WithContext(ctx).Where("id = ?", settingsRowID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (r *Repository) SaveSettings(ctx context.Context, settings *models.Settings) error {
	settings.ID = settingsRowID
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
