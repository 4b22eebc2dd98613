package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// AgentRepository is the get/update/list surface for agent records.
type AgentRepository interface {
	Create(ctx context.Context, agent *dbmodel.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.Agent, error)
	GetByName(ctx context.Context, name string) (*dbmodel.Agent, error)
	Update(ctx context.Context, agent *dbmodel.Agent) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, lastSeenAt time.Time) error
	List(ctx context.Context, opts ListOptions) ([]dbmodel.Agent, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	ReplacePacks(ctx context.Context, agentID uuid.UUID, packs []dbmodel.AgentPack) error
	ListPacks(ctx context.Context, agentID uuid.UUID) ([]dbmodel.AgentPack, error)
}

// IntegrationRepository is the get/update/list surface for integration rows.
type IntegrationRepository interface {
	Create(ctx context.Context, integration *dbmodel.Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.Integration, error)
	GetByType(ctx context.Context, packType string) (*dbmodel.Integration, error)
	Update(ctx context.Context, integration *dbmodel.Integration) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]dbmodel.Integration, int64, error)

	AppendEvent(ctx context.Context, event *dbmodel.IntegrationEvent) error
}

// APIKeyRepository resolves API keys by their SHA-256 hash in O(1) via a
// unique index, and tracks last-used timestamps.
type APIKeyRepository interface {
	Create(ctx context.Context, key *dbmodel.APIKey) error
	GetByHash(ctx context.Context, hash string) (*dbmodel.APIKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.APIKey, error)
	Update(ctx context.Context, key *dbmodel.APIKey) error
	Revoke(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]dbmodel.APIKey, int64, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, when time.Time) error
}

// RoleRepository backs the persisted RBAC role table.
type RoleRepository interface {
	Get(ctx context.Context, name string) (*dbmodel.Role, error)
	Upsert(ctx context.Context, role *dbmodel.Role) error
	List(ctx context.Context) ([]dbmodel.Role, error)
}

// AccessGroupRepository backs named groups of agents/integrations visible
// to a set of dashboard users.
type AccessGroupRepository interface {
	Create(ctx context.Context, group *dbmodel.AccessGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*dbmodel.AccessGroup, error)
	List(ctx context.Context) ([]dbmodel.AccessGroup, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddAgent(ctx context.Context, groupID, agentID uuid.UUID) error
	AddIntegration(ctx context.Context, groupID, integrationID uuid.UUID) error
	AddUser(ctx context.Context, groupID, userID uuid.UUID) error
	AgentNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// DashboardUserRepository covers local admins and SSO authorization lists.
type DashboardUserRepository interface {
	GetLocalAdminByUsername(ctx context.Context, username string) (*dbmodel.LocalAdmin, error)
	CreateLocalAdmin(ctx context.Context, admin *dbmodel.LocalAdmin) error
	CountLocalAdmins(ctx context.Context) (int64, error)

	GetAuthorizedUser(ctx context.Context, email string) (*dbmodel.AuthorizedUser, error)
	GetAuthorizedGroup(ctx context.Context, entraGroupID string) (*dbmodel.AuthorizedGroup, error)

	GetSSOConfig(ctx context.Context) (*dbmodel.SSOConfig, error)
	UpsertSSOConfig(ctx context.Context, cfg *dbmodel.SSOConfig) error
}

// OAuthRepository backs the hub's own MCP authorization server.
type OAuthRepository interface {
	GetClient(ctx context.Context, clientID string) (*dbmodel.OAuthClient, error)
	CreateClient(ctx context.Context, client *dbmodel.OAuthClient) error

	CreateCode(ctx context.Context, code *dbmodel.OAuthCode) error
	ConsumeCode(ctx context.Context, code string) (*dbmodel.OAuthCode, error)

	CreateToken(ctx context.Context, token *dbmodel.OAuthToken) error
	GetTokenByHash(ctx context.Context, hash string) (*dbmodel.OAuthToken, error)
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// CriticalPathRepository backs named, ordered probe-step sequences.
type CriticalPathRepository interface {
	Create(ctx context.Context, path *dbmodel.CriticalPath, steps []dbmodel.CriticalPathStep) error
	GetByName(ctx context.Context, name string) (*dbmodel.CriticalPath, []dbmodel.CriticalPathStep, error)
	List(ctx context.Context) ([]dbmodel.CriticalPath, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditRepository appends rows to the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, entry *dbmodel.AuditEntry) error
	List(ctx context.Context, opts ListOptions) ([]dbmodel.AuditEntry, int64, error)
	Count(ctx context.Context) (int64, error)
}

// SettingsRepository stores small encrypted-at-rest key/value settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
