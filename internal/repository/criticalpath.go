package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormCriticalPathRepository struct {
	db *gorm.DB
}

func NewCriticalPathRepository(db *gorm.DB) CriticalPathRepository {
	return &gormCriticalPathRepository{db: db}
}

func (r *gormCriticalPathRepository) Create(ctx context.Context, path *dbmodel.CriticalPath, steps []dbmodel.CriticalPathStep) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(path).Error; err != nil {
			return fmt.Errorf("critical paths: create: %w", err)
		}
		for i := range steps {
			steps[i].CriticalPathID = path.ID
		}
		if len(steps) == 0 {
			return nil
		}
		if err := tx.Create(&steps).Error; err != nil {
			return fmt.Errorf("critical paths: create steps: %w", err)
		}
		return nil
	})
}

func (r *gormCriticalPathRepository) GetByName(ctx context.Context, name string) (*dbmodel.CriticalPath, []dbmodel.CriticalPathStep, error) {
	var path dbmodel.CriticalPath
	if err := r.db.WithContext(ctx).First(&path, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("critical paths: get by name: %w", err)
	}
	var steps []dbmodel.CriticalPathStep
	if err := r.db.WithContext(ctx).
		Where("critical_path_id = ?", path.ID).
		Order("position asc").
		Find(&steps).Error; err != nil {
		return nil, nil, fmt.Errorf("critical paths: list steps: %w", err)
	}
	return &path, steps, nil
}

func (r *gormCriticalPathRepository) List(ctx context.Context) ([]dbmodel.CriticalPath, error) {
	var paths []dbmodel.CriticalPath
	if err := r.db.WithContext(ctx).Order("name asc").Find(&paths).Error; err != nil {
		return nil, fmt.Errorf("critical paths: list: %w", err)
	}
	return paths, nil
}

func (r *gormCriticalPathRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&dbmodel.CriticalPath{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("critical paths: delete: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("critical_path_id = ?", id).Delete(&dbmodel.CriticalPathStep{}).Error; err != nil {
			return fmt.Errorf("critical paths: delete steps: %w", err)
		}
		return nil
	})
}
