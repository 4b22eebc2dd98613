package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

type gormRoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &gormRoleRepository{db: db}
}

func (r *gormRoleRepository) Get(ctx context.Context, name string) (*dbmodel.Role, error) {
	var role dbmodel.Role
	if err := r.db.WithContext(ctx).First(&role, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("roles: get: %w", err)
	}
	return &role, nil
}

func (r *gormRoleRepository) Upsert(ctx context.Context, role *dbmodel.Role) error {
	if err := r.db.WithContext(ctx).Save(role).Error; err != nil {
		return fmt.Errorf("roles: upsert: %w", err)
	}
	return nil
}

func (r *gormRoleRepository) List(ctx context.Context) ([]dbmodel.Role, error) {
	var roles []dbmodel.Role
	if err := r.db.WithContext(ctx).Order("level asc").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	return roles, nil
}

type gormAccessGroupRepository struct {
	db *gorm.DB
}

func NewAccessGroupRepository(db *gorm.DB) AccessGroupRepository {
	return &gormAccessGroupRepository{db: db}
}

func (r *gormAccessGroupRepository) Create(ctx context.Context, group *dbmodel.AccessGroup) error {
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("access groups: create: %w", err)
	}
	return nil
}

func (r *gormAccessGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.AccessGroup, error) {
	var group dbmodel.AccessGroup
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("access groups: get by id: %w", err)
	}
	return &group, nil
}

func (r *gormAccessGroupRepository) List(ctx context.Context) ([]dbmodel.AccessGroup, error) {
	var groups []dbmodel.AccessGroup
	if err := r.db.WithContext(ctx).Order("name asc").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("access groups: list: %w", err)
	}
	return groups, nil
}

func (r *gormAccessGroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&dbmodel.AccessGroup{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("access groups: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAccessGroupRepository) AddAgent(ctx context.Context, groupID, agentID uuid.UUID) error {
	link := dbmodel.AccessGroupAgent{AccessGroupID: groupID, AgentID: agentID}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("access groups: add agent: %w", err)
	}
	return nil
}

func (r *gormAccessGroupRepository) AddIntegration(ctx context.Context, groupID, integrationID uuid.UUID) error {
	link := dbmodel.AccessGroupIntegration{AccessGroupID: groupID, IntegrationID: integrationID}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("access groups: add integration: %w", err)
	}
	return nil
}

func (r *gormAccessGroupRepository) AddUser(ctx context.Context, groupID, userID uuid.UUID) error {
	link := dbmodel.AccessGroupUser{AccessGroupID: groupID, UserID: userID}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("access groups: add user: %w", err)
	}
	return nil
}

// AgentNamesForUser resolves every agent name visible to a dashboard user
// through group membership, joining user -> group -> agent in one query.
func (r *gormAccessGroupRepository) AgentNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("agents").
		Joins("JOIN access_group_agents ON access_group_agents.agent_id = agents.id").
		Joins("JOIN access_group_users ON access_group_users.access_group_id = access_group_agents.access_group_id").
		Where("access_group_users.user_id = ?", userID).
		Distinct().
		Pluck("agents.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("access groups: agent names for user: %w", err)
	}
	return names, nil
}
