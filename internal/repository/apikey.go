package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormAPIKeyRepository struct {
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &gormAPIKeyRepository{db: db}
}

func (r *gormAPIKeyRepository) Create(ctx context.Context, key *dbmodel.APIKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("apikeys: create: %w", err)
	}
	return nil
}

// GetByHash is the hot path hit on every authenticated request: a unique
// index on key_hash keeps this O(1) regardless of fleet size.
func (r *gormAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*dbmodel.APIKey, error) {
	var key dbmodel.APIKey
	if err := r.db.WithContext(ctx).First(&key, "key_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("apikeys: get by hash: %w", err)
	}
	return &key, nil
}

func (r *gormAPIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.APIKey, error) {
	var key dbmodel.APIKey
	if err := r.db.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("apikeys: get by id: %w", err)
	}
	return &key, nil
}

func (r *gormAPIKeyRepository) Update(ctx context.Context, key *dbmodel.APIKey) error {
	result := r.db.WithContext(ctx).Save(key)
	if result.Error != nil {
		return fmt.Errorf("apikeys: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAPIKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&dbmodel.APIKey{}).
		Where("id = ?", id).
		Update("revoked_at", time.Now().UTC())
	if result.Error != nil {
		return fmt.Errorf("apikeys: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAPIKeyRepository) List(ctx context.Context, opts ListOptions) ([]dbmodel.APIKey, int64, error) {
	var (
		keys  []dbmodel.APIKey
		total int64
	)
	q := r.db.WithContext(ctx).Model(&dbmodel.APIKey{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("apikeys: count: %w", err)
	}
	q = q.Order("created_at desc")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&keys).Error; err != nil {
		return nil, 0, fmt.Errorf("apikeys: list: %w", err)
	}
	return keys, total, nil
}

func (r *gormAPIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, when time.Time) error {
	result := r.db.WithContext(ctx).Model(&dbmodel.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", when)
	if result.Error != nil {
		return fmt.Errorf("apikeys: touch last used: %w", result.Error)
	}
	return nil
}
