package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormDashboardUserRepository struct {
	db *gorm.DB
}

func NewDashboardUserRepository(db *gorm.DB) DashboardUserRepository {
	return &gormDashboardUserRepository{db: db}
}

func (r *gormDashboardUserRepository) GetLocalAdminByUsername(ctx context.Context, username string) (*dbmodel.LocalAdmin, error) {
	var admin dbmodel.LocalAdmin
	if err := r.db.WithContext(ctx).First(&admin, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dashboard users: get local admin: %w", err)
	}
	return &admin, nil
}

func (r *gormDashboardUserRepository) CreateLocalAdmin(ctx context.Context, admin *dbmodel.LocalAdmin) error {
	if err := r.db.WithContext(ctx).Create(admin).Error; err != nil {
		return fmt.Errorf("dashboard users: create local admin: %w", err)
	}
	return nil
}

func (r *gormDashboardUserRepository) CountLocalAdmins(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&dbmodel.LocalAdmin{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("dashboard users: count local admins: %w", err)
	}
	return count, nil
}

func (r *gormDashboardUserRepository) GetAuthorizedUser(ctx context.Context, email string) (*dbmodel.AuthorizedUser, error) {
	var user dbmodel.AuthorizedUser
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dashboard users: get authorized user: %w", err)
	}
	return &user, nil
}

func (r *gormDashboardUserRepository) GetAuthorizedGroup(ctx context.Context, entraGroupID string) (*dbmodel.AuthorizedGroup, error) {
	var group dbmodel.AuthorizedGroup
	if err := r.db.WithContext(ctx).First(&group, "entra_group_id = ?", entraGroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dashboard users: get authorized group: %w", err)
	}
	return &group, nil
}

// GetSSOConfig returns the single configured SSO provider row, if any. There
// is at most one row in this table — Entra SSO is a single-tenant concern
// for this hub, not a per-organization list.
func (r *gormDashboardUserRepository) GetSSOConfig(ctx context.Context) (*dbmodel.SSOConfig, error) {
	var cfg dbmodel.SSOConfig
	if err := r.db.WithContext(ctx).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dashboard users: get sso config: %w", err)
	}
	return &cfg, nil
}

func (r *gormDashboardUserRepository) UpsertSSOConfig(ctx context.Context, cfg *dbmodel.SSOConfig) error {
	existing, err := r.GetSSOConfig(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		cfg.ID = existing.ID
	}
	if err := r.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("dashboard users: upsert sso config: %w", err)
	}
	return nil
}
