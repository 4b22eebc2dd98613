package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormOAuthRepository struct {
	db *gorm.DB
}

func NewOAuthRepository(db *gorm.DB) OAuthRepository {
	return &gormOAuthRepository{db: db}
}

func (r *gormOAuthRepository) GetClient(ctx context.Context, clientID string) (*dbmodel.OAuthClient, error) {
	var client dbmodel.OAuthClient
	if err := r.db.WithContext(ctx).First(&client, "client_id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("oauth: get client: %w", err)
	}
	return &client, nil
}

func (r *gormOAuthRepository) CreateClient(ctx context.Context, client *dbmodel.OAuthClient) error {
	if err := r.db.WithContext(ctx).Create(client).Error; err != nil {
		return fmt.Errorf("oauth: create client: %w", err)
	}
	return nil
}

func (r *gormOAuthRepository) CreateCode(ctx context.Context, code *dbmodel.OAuthCode) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		return fmt.Errorf("oauth: create code: %w", err)
	}
	return nil
}

// ConsumeCode atomically marks a code consumed and returns it, so a code can
// never be exchanged twice even under concurrent requests.
func (r *gormOAuthRepository) ConsumeCode(ctx context.Context, code string) (*dbmodel.OAuthCode, error) {
	var oc dbmodel.OAuthCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&oc, "code = ? AND consumed_at IS NULL", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		now := time.Now().UTC()
		result := tx.Model(&oc).Where("consumed_at IS NULL").Update("consumed_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("oauth: consume code: %w", err)
	}
	return &oc, nil
}

func (r *gormOAuthRepository) CreateToken(ctx context.Context, token *dbmodel.OAuthToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("oauth: create token: %w", err)
	}
	return nil
}

func (r *gormOAuthRepository) GetTokenByHash(ctx context.Context, hash string) (*dbmodel.OAuthToken, error) {
	var token dbmodel.OAuthToken
	if err := r.db.WithContext(ctx).First(&token, "token_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("oauth: get token by hash: %w", err)
	}
	return &token, nil
}

// DeleteExpiredTokens is invoked periodically by the maintenance scheduler
// rather than per-request, keeping the hot auth path free of cleanup work.
func (r *gormOAuthRepository) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&dbmodel.OAuthToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("oauth: delete expired tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
