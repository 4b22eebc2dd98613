package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormSettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &gormSettingsRepository{db: db}
}

func (r *gormSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var setting dbmodel.HubSetting
	if err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("settings: get: %w", err)
	}
	return string(setting.Value), nil
}

func (r *gormSettingsRepository) Set(ctx context.Context, key, value string) error {
	setting := dbmodel.HubSetting{Key: key, Value: dbmodel.EncryptedString(value)}
	if err := r.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}
