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

// gormAgentRepository is the GORM implementation of AgentRepository.
type gormAgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository returns an AgentRepository backed by the provided *gorm.DB.
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &gormAgentRepository{db: db}
}

func (r *gormAgentRepository) Create(ctx context.Context, agent *dbmodel.Agent) error {
	if err := r.db.WithContext(ctx).Create(agent).Error; err != nil {
		return fmt.Errorf("agents: create: %w", err)
	}
	return nil
}

func (r *gormAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.Agent, error) {
	var agent dbmodel.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agents: get by id: %w", err)
	}
	return &agent, nil
}

// GetByName looks up an agent by its unique display name. On registration,
// the hub rebinds the existing ID for a known name rather than minting a new
// one — this is the lookup that decision is based on.
func (r *gormAgentRepository) GetByName(ctx context.Context, name string) (*dbmodel.Agent, error) {
	var agent dbmodel.Agent
	if err := r.db.WithContext(ctx).First(&agent, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agents: get by name: %w", err)
	}
	return &agent, nil
}

func (r *gormAgentRepository) Update(ctx context.Context, agent *dbmodel.Agent) error {
	result := r.db.WithContext(ctx).Save(agent)
	if result.Error != nil {
		return fmt.Errorf("agents: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAgentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, lastSeenAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&dbmodel.Agent{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "last_seen_at": lastSeenAt})
	if result.Error != nil {
		return fmt.Errorf("agents: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAgentRepository) List(ctx context.Context, opts ListOptions) ([]dbmodel.Agent, int64, error) {
	var (
		agents []dbmodel.Agent
		total  int64
	)
	q := r.db.WithContext(ctx).Model(&dbmodel.Agent{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("agents: count: %w", err)
	}
	q = q.Order("name asc")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := q.Find(&agents).Error; err != nil {
		return nil, 0, fmt.Errorf("agents: list: %w", err)
	}
	return agents, total, nil
}

func (r *gormAgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&dbmodel.Agent{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("agents: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePacks overwrites the full set of packs reported by an agent. Called
// on every register, since the agent reports its complete pack list each
// time rather than incremental deltas; heartbeats do not change packs.
func (r *gormAgentRepository) ReplacePacks(ctx context.Context, agentID uuid.UUID, packs []dbmodel.AgentPack) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("agent_id = ?", agentID).Delete(&dbmodel.AgentPack{}).Error; err != nil {
			return fmt.Errorf("agents: clear packs: %w", err)
		}
		for i := range packs {
			packs[i].AgentID = agentID
		}
		if len(packs) == 0 {
			return nil
		}
		if err := tx.Create(&packs).Error; err != nil {
			return fmt.Errorf("agents: insert packs: %w", err)
		}
		return nil
	})
}

func (r *gormAgentRepository) ListPacks(ctx context.Context, agentID uuid.UUID) ([]dbmodel.AgentPack, error) {
	var packs []dbmodel.AgentPack
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Find(&packs).Error; err != nil {
		return nil, fmt.Errorf("agents: list packs: %w", err)
	}
	return packs, nil
}
