package dbmodel

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models. ID uses UUID v7
// (time-ordered) for efficient B-tree indexing and natural chronological
// ordering without a separate created_at sort. CreatedAt and UpdatedAt are
// managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// Agents & packs
// -----------------------------------------------------------------------------

// Agent is a registered fleet host. Names are unique; an incoming
// registration with a known name rebinds the existing ID rather than
// creating a duplicate row.
type Agent struct {
	base
	Name          string `gorm:"uniqueIndex;not null"`
	OS            string `gorm:"not null;default:''"`
	AgentVersion  string `gorm:"not null;default:''"`
	Status        string `gorm:"not null;default:'offline'"` // online, offline, degraded
	LastSeenAt    *time.Time
	EnrollmentRef string `gorm:"default:''"` // enrollment token minted when the agent is created via the API; never cleared
	CertSerial    string `gorm:"default:''"` // mTLS client cert serial, if issued

	// Packs is populated by a manual query against AgentPack — GORM cannot
	// resolve foreign keys on UUID primary keys without an explicit join.
	Packs []AgentPack `gorm:"-"`
}

// AgentPack records one pack an agent reported as loaded, with its status.
type AgentPack struct {
	base
	AgentID uuid.UUID `gorm:"type:text;not null;index"`
	Name    string    `gorm:"not null"`
	Version string    `gorm:"not null"`
	Status  string    `gorm:"not null;default:'active'"` // active, disabled, error
}

// -----------------------------------------------------------------------------
// Integrations
// -----------------------------------------------------------------------------

// Integration is a remote system reachable over HTTP, with encrypted
// credentials at rest.
type Integration struct {
	base
	Type           string          `gorm:"not null"` // pack prefix, e.g. "proxmox"
	Name           string          `gorm:"not null"`
	ConfigBlob     EncryptedString `gorm:"type:text;not null"` // JSON: endpoint, headers, tls flag, credentials
	Status         string          `gorm:"not null;default:'unknown'"` // ok, error, unknown
	LastTestResult string          `gorm:"default:''"`
	LastTestAt     *time.Time
}

// IntegrationEvent is an append-only log of integration probe outcomes used
// for diagnosing remote-system failures.
type IntegrationEvent struct {
	base
	IntegrationID uuid.UUID `gorm:"type:text;not null;index"`
	Probe         string    `gorm:"not null"`
	ErrorName     string    `gorm:"default:''"`
	CauseName     string    `gorm:"default:''"`
	CauseCode     string    `gorm:"default:''"`
}

// -----------------------------------------------------------------------------
// API keys & RBAC
// -----------------------------------------------------------------------------

// APIKey stores only the SHA-256 hash of the raw secret: hash -> record
// lookup is deterministic and O(1) via a unique index.
type APIKey struct {
	base
	KeyHash     string `gorm:"uniqueIndex;not null"` // 64-char lowercase hex sha256
	DisplayName string `gorm:"not null"`
	Role        string `gorm:"not null;default:'member'"` // member, admin, owner
	PolicyBlob  string `gorm:"type:text;default:'{}'"`     // JSON-encoded Policy
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
	CreatedBy   string `gorm:"default:''"`
	LastUsedAt  *time.Time
}

// Role is a persisted, named permission set. The built-in member/admin/owner
// levelling is augmented by rows here so custom roles and
// permission sets can be managed without a redeploy.
type Role struct {
	Name        string `gorm:"primaryKey"`
	Level       int    `gorm:"not null"` // member=0, admin=1, owner=2
	Permissions string `gorm:"type:text;default:'[]'"` // JSON array of permission strings
}

// AccessGroup is a named group of agents/integrations visible to a set of
// dashboard users. Group membership is stored but not fed into the policy
// evaluator on any request path.
type AccessGroup struct {
	base
	Name string `gorm:"uniqueIndex;not null"`
}

type AccessGroupAgent struct {
	base
	AccessGroupID uuid.UUID `gorm:"type:text;not null;index"`
	AgentID       uuid.UUID `gorm:"type:text;not null;index"`
}

type AccessGroupIntegration struct {
	base
	AccessGroupID uuid.UUID `gorm:"type:text;not null;index"`
	IntegrationID uuid.UUID `gorm:"type:text;not null;index"`
}

type AccessGroupUser struct {
	base
	AccessGroupID uuid.UUID `gorm:"type:text;not null;index"`
	UserID        uuid.UUID `gorm:"type:text;not null;index"`
}

// -----------------------------------------------------------------------------
// Dashboard users & SSO
// -----------------------------------------------------------------------------

// LocalAdmin is a username/password dashboard account.
// Password is Argon2id-hashed. SONDE_ADMIN_USER/SONDE_ADMIN_PASSWORD only
// seed the first row at startup; login checks these rows alone, with no
// env-var fallback.
type LocalAdmin struct {
	base
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"` // argon2id, format salt:hash
	Role         string `gorm:"not null;default:'admin'"`
}

// AuthorizedUser grants dashboard access to one Entra SSO identity.
type AuthorizedUser struct {
	base
	Email string `gorm:"uniqueIndex;not null"`
	Role  string `gorm:"not null;default:'member'"`
}

// AuthorizedGroup maps an Entra group object ID to a dashboard role.
type AuthorizedGroup struct {
	base
	EntraGroupID string `gorm:"uniqueIndex;not null"`
	Role         string `gorm:"not null;default:'member'"`
}

// SSOConfig holds the single configured Entra OIDC provider.
type SSOConfig struct {
	base
	Issuer       string          `gorm:"not null"`
	ClientID     string          `gorm:"not null"`
	ClientSecret EncryptedString `gorm:"type:text;not null"`
	RedirectURL  string          `gorm:"not null"`
	Enabled      bool            `gorm:"not null;default:false"`
}

// -----------------------------------------------------------------------------
// MCP OAuth2 authorization server
// -----------------------------------------------------------------------------

type OAuthClient struct {
	base
	ClientID     string `gorm:"uniqueIndex;not null"`
	ClientSecret string `gorm:"not null"` // hashed
	RedirectURIs string `gorm:"type:text;not null;default:'[]'"` // JSON array
}

// OAuthCode is a single-use authorization code, 5-minute TTL.
type OAuthCode struct {
	base
	ClientID            string    `gorm:"not null;index"`
	Code                string    `gorm:"uniqueIndex;not null"`
	CodeChallenge       string    `gorm:"not null"`
	CodeChallengeMethod string    `gorm:"not null;default:'S256'"`
	RedirectURI         string    `gorm:"not null"`
	Scopes              string    `gorm:"default:''"`
	ExpiresAt           time.Time `gorm:"not null"`
	ConsumedAt          *time.Time
}

// OAuthToken is an issued MCP access token, 1-hour TTL, no refresh tokens
// issued.
type OAuthToken struct {
	base
	ClientID  string    `gorm:"not null;index"`
	TokenHash string    `gorm:"uniqueIndex;not null"`
	Scopes    string    `gorm:"default:''"`
	ExpiresAt time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Critical paths
// -----------------------------------------------------------------------------

// CriticalPath is a named ordered sequence of steps.
type CriticalPath struct {
	base
	Name string `gorm:"uniqueIndex;not null"`

	Steps []CriticalPathStep `gorm:"-"`
}

type CriticalPathStep struct {
	base
	CriticalPathID uuid.UUID `gorm:"type:text;not null;index"`
	Position       int       `gorm:"not null"`
	Label          string    `gorm:"not null"`
	TargetType     string    `gorm:"not null"` // agent, integration
	TargetID       string    `gorm:"not null"`
	Probes         string    `gorm:"type:text;not null;default:'[]'"` // JSON array of probe names
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

// AuditEntry is an append-only record of every probe invocation.
type AuditEntry struct {
	base
	APIKeyID     *uuid.UUID `gorm:"type:text;index"`
	Source       string     `gorm:"not null"` // agent ID/name or "mcp-oauth:<clientId>"
	Probe        string     `gorm:"not null"`
	Status       string     `gorm:"not null"` // success, error, timeout
	DurationMs   int64      `gorm:"not null;default:0"`
	RequestJSON  string     `gorm:"type:text;default:'{}'"`
	ResponseJSON string     `gorm:"type:text;default:'{}'"`
}

// -----------------------------------------------------------------------------
// Hub-wide settings
// -----------------------------------------------------------------------------

// HubSetting is a generic encrypted-at-rest key/value row, read and written
// through the hub-settings API.
type HubSetting struct {
	Key       string          `gorm:"primaryKey"`
	Value     EncryptedString `gorm:"type:text;not null"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime"`
}
