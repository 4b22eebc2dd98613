package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormIntegrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &gormIntegrationRepository{db: db}
}

func (r *gormIntegrationRepository) Create(ctx context.Context, integration *dbmodel.Integration) error {
	if err := r.db.WithContext(ctx).Create(integration).Error; err != nil {
		return fmt.Errorf("integrations: create: %w", err)
	}
	return nil
}

func (r *gormIntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.Integration, error) {
	var integration dbmodel.Integration
	if err := r.db.WithContext(ctx).First(&integration, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("integrations: get by id: %w", err)
	}
	return &integration, nil
}

// GetByType returns the first integration configured for the given pack
// type prefix. Used by the probe router to resolve a pack-prefixed probe
// name to the integration it targets.
func (r *gormIntegrationRepository) GetByType(ctx context.Context, packType string) (*dbmodel.Integration, error) {
	var integration dbmodel.Integration
	if err := r.db.WithContext(ctx).First(&integration, "type = ?", packType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("integrations: get by type: %w", err)
	}
	return &integration, nil
}

func (r *gormIntegrationRepository) Update(ctx context.Context, integration *dbmodel.Integration) error {
	result := r.db.WithContext(ctx).Save(integration)
	if result.Error != nil {
		return fmt.Errorf("integrations: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&dbmodel.Integration{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("integrations: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormIntegrationRepository) List(ctx context.Context, opts ListOptions) ([]dbmodel.Integration, int64, error) {
	var (
		integrations []dbmodel.Integration
		total        int64
	)
	q := r.db.WithContext(ctx).Model(&dbmodel.Integration{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("integrations: count: %w", err)
	}
	q = q.Order("name asc")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&integrations).Error; err != nil {
		return nil, 0, fmt.Errorf("integrations: list: %w", err)
	}
	return integrations, total, nil
}

func (r *gormIntegrationRepository) AppendEvent(ctx context.Context, event *dbmodel.IntegrationEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("integrations: append event: %w", err)
	}
	return nil
}
