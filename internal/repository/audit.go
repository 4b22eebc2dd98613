package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormAuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &gormAuditRepository{db: db}
}

func (r *gormAuditRepository) Append(ctx context.Context, entry *dbmodel.AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *gormAuditRepository) List(ctx context.Context, opts ListOptions) ([]dbmodel.AuditEntry, int64, error) {
	var (
		entries []dbmodel.AuditEntry
		total   int64
	)
	q := r.db.WithContext(ctx).Model(&dbmodel.AuditEntry{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}
	q = q.Order("created_at desc")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("audit: list: %w", err)
	}
	return entries, total, nil
}

func (r *gormAuditRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&dbmodel.AuditEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return count, nil
}
