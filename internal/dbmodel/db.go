// Package dbmodel is the persistence port's concrete storage layer: GORM
// models, transparent at-rest encryption, and connection setup. It supports
// SQLite (via the modernc pure-Go driver, no CGO required) and PostgreSQL.
// Schema is brought up to date with gorm.AutoMigrate on startup rather than
// a versioned migration tool — the hub ships as a single binary and the
// schema is entirely owned by this package, so there is no external
// migration tooling to coordinate with.
package dbmodel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver — no CGO required. Registers itself as
	// "sqlite" in database/sql.
	_ "modernc.org/sqlite"
)

// Config holds the configuration required to open a database connection.
// Driver defaults to "sqlite" if left empty.
type Config struct {
	Driver   string // "sqlite" or "postgres"
	DSN      string
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

// allModels lists every model AutoMigrate must bring up to date. Order does
// not matter for SQLite/Postgres since foreign keys are not declared at the
// GORM level (UUID primary keys are resolved manually, see model comments).
var allModels = []any{
	&Agent{}, &AgentPack{},
	&Integration{}, &IntegrationEvent{},
	&APIKey{}, &Role{},
	&AccessGroup{}, &AccessGroupAgent{}, &AccessGroupIntegration{}, &AccessGroupUser{},
	&LocalAdmin{}, &AuthorizedUser{}, &AuthorizedGroup{}, &SSOConfig{},
	&OAuthClient{}, &OAuthCode{}, &OAuthToken{},
	&CriticalPath{}, &CriticalPathStep{},
	&AuditEntry{},
	&HubSetting{},
}

// New opens a database connection, runs AutoMigrate, and returns the
// ready-to-use *gorm.DB instance.
func New(cfg Config) (*gorm.DB, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("dbmodel: logger is required")
	}

	gormCfg := &gorm.Config{
		Logger: newZapGORMLogger(cfg.Logger, cfg.LogLevel),
	}

	var (
		database *gorm.DB
		sqlDB    *sql.DB
		err      error
	)

	switch cfg.Driver {
	case "sqlite", "":
		// Open the connection manually via database/sql using the modernc
		// driver (registered as "sqlite"), then hand the existing *sql.DB to
		// GORM so it does not try to open a second connection.
		sqlDB, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("dbmodel: failed to open sqlite: %w", err)
		}
		// SQLite supports only one writer at a time.
		sqlDB.SetMaxOpenConns(1)

		database, err = gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("dbmodel: failed to initialize gorm with sqlite: %w", err)
		}

	case "postgres":
		database, err = gorm.Open(gormpostgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("dbmodel: failed to open postgres: %w", err)
		}
		sqlDB, err = database.DB()
		if err != nil {
			return nil, fmt.Errorf("dbmodel: failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)

	default:
		return nil, fmt.Errorf("dbmodel: unsupported driver %q, use \"sqlite\" or \"postgres\"", cfg.Driver)
	}

	if err := database.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("dbmodel: auto-migrate failed: %w", err)
	}

	cfg.Logger.Info("database ready", zap.String("driver", orDefault(cfg.Driver, "sqlite")))
	return database, nil
}

// Ping verifies that the database connection is still alive.
func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("dbmodel: failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
