package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sonde-io/sonde-hub/internal/agentdispatch"
	"github.com/sonde-io/sonde-hub/internal/api"
	"github.com/sonde-io/sonde-hub/internal/auth"
	"github.com/sonde-io/sonde-hub/internal/config"
	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/integration"
	"github.com/sonde-io/sonde-hub/internal/mcp"
	"github.com/sonde-io/sonde-hub/internal/pack"
	"github.com/sonde-io/sonde-hub/internal/repository"
	"github.com/sonde-io/sonde-hub/internal/router"
	"github.com/sonde-io/sonde-hub/internal/runbook"
	wshub "github.com/sonde-io/sonde-hub/internal/websocket"
)

func main() {
	if err := config.NewRootCmd(runHub).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHub(cmd *cobra.Command, args []string) error {
	logLevel := os.Getenv("SONDE_LOG_LEVEL")

	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting sonde hub",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.Bool("tls", cfg.TLS),
	)

	// --- 1. Encryption ---
	// InitEncryption must run before opening the database so EncryptedString
	// fields can encrypt/decrypt transparently on read/write. The secret is
	// padded or truncated to exactly 32 bytes (AES-256).
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.Secret))
	if err := dbmodel.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := dbmodel.New(dbmodel.Config{
		Driver:   "sqlite",
		DSN:      cfg.DBPath,
		Logger:   logger,
		LogLevel: gormLogLevel(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	agentRepo := repository.NewAgentRepository(gormDB)
	integrationRepo := repository.NewIntegrationRepository(gormDB)
	apiKeyRepo := repository.NewAPIKeyRepository(gormDB)
	roleRepo := repository.NewRoleRepository(gormDB)
	accessGroupRepo := repository.NewAccessGroupRepository(gormDB)
	dashboardUserRepo := repository.NewDashboardUserRepository(gormDB)
	oauthRepo := repository.NewOAuthRepository(gormDB)
	criticalPathRepo := repository.NewCriticalPathRepository(gormDB)
	auditRepo := repository.NewAuditRepository(gormDB)
	settingsRepo := repository.NewSettingsRepository(gormDB)

	if err := bootstrapAdmin(ctx, dashboardUserRepo, cfg, logger); err != nil {
		logger.Warn("admin bootstrap skipped", zap.Error(err))
	}

	// --- 4. Auth ---
	// MCP OAuth2 access tokens are self-issued with an ephemeral in-memory
	// RSA key; nothing in this deployment needs them to survive a restart
	// since clients re-authenticate via their API key or SSO session.
	jwtManager, err := auth.NewJWTManagerGenerated("sonde-hub")
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}
	apiKeyAuth := auth.NewAPIKeyAuthenticator(apiKeyRepo)
	oauthServer := auth.NewOAuth2Server(oauthRepo, jwtManager)
	sessionStore := auth.NewSessionStore()
	rateLimiter := auth.NewLoginRateLimiter()
	localProvider := auth.NewLocalAuthProvider(dashboardUserRepo, rateLimiter)
	ssoProvider := auth.NewEntraSSOProvider(dashboardUserRepo)
	roleChecker := auth.NewRoleChecker(roleRepo)
	authService := auth.NewAuthService(apiKeyAuth, oauthServer, sessionStore, localProvider, ssoProvider, roleChecker, logger)

	// --- 5. Probe-routing core ---
	packsDir := envOrDefault("SONDE_PACKS_DIR", "./packs")
	allowUnsigned := envOrDefault("SONDE_PACKS_ALLOW_UNSIGNED", "true") == "true"
	packs := pack.NewRegistry(allowUnsigned, nil)
	if err := packs.LoadDir(packsDir); err != nil {
		logger.Warn("failed to load integration packs", zap.String("dir", packsDir), zap.Error(err))
	}

	dispatcher := agentdispatch.NewRegistry(agentRepo, logger)
	defer dispatcher.Close()

	// Keeper/Azure Key Vault secret resolution is out of scope for this
	// build; integration configs are expected to carry literal values.
	executor := integration.NewExecutor(integrationRepo, nil, logger)
	probeRouter := router.New(packs, dispatcher, executor, integrationRepo, agentRepo, logger)
	simpleRunner := runbook.NewSimpleRunner(packs, probeRouter, logger)
	diagnosticEngine := runbook.NewDiagnosticEngine(probeRouter, logger)

	// --- 6. MCP surface ---
	mcpServer := mcp.NewServer(mcp.Deps{
		Router:       probeRouter,
		Simple:       simpleRunner,
		Diagnostic:   diagnosticEngine,
		Dispatcher:   dispatcher,
		Packs:        packs,
		Agents:       agentRepo,
		Integrations: integrationRepo,
		CriticalPath: criticalPathRepo,
		Audit:        auditRepo,
		APIKeys:      apiKeyRepo,
		Logger:       logger,
	})
	mcpSessions := mcp.NewSessionManager()
	mcpTransport := mcp.NewTransport(mcpServer, mcpSessions, authService, logger)

	// --- 7. Dashboard live-update hub ---
	hub := wshub.NewHub()
	go hub.Run(ctx)

	// --- 8. Sweep jobs ---
	// Process-local caches (login rate limiter, dashboard sessions, MCP
	// sessions) and the persisted OAuth2 token table all accumulate stale
	// entries; none of this is latency-sensitive enough to justify its own
	// goroutine per concern.
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create sweep scheduler: %w", err)
	}
	registerSweepJobs(sched, rateLimiter, sessionStore, mcpSessions, oauthRepo, logger)
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warn("sweep scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 9. HTTP server ---
	httpRouter := api.NewRouter(api.RouterConfig{
		AuthService:    authService,
		Roles:          roleChecker,
		Logger:         logger,
		Agents:         agentRepo,
		Integrations:   integrationRepo,
		IntegrationRun: executor,
		APIKeys:        apiKeyRepo,
		CriticalPaths:  criticalPathRepo,
		Audit:          auditRepo,
		DashboardUsers: dashboardUserRepo,
		AccessGroups:   accessGroupRepo,
		Settings:       settingsRepo,
		Hub:            hub,
		Dispatcher:     dispatcher,
		MCP:            mcpTransport,
		Secure:         cfg.TLS,
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		var serveErr error
		if cfg.TLS {
			serveErr = httpSrv.ListenAndServeTLS("", "")
		} else {
			serveErr = httpSrv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(serveErr))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down sonde hub")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("sonde hub stopped")
	return nil
}

// registerSweepJobs wires a gocron task per process-local cache that
// accumulates stale entries: failed-login counters, dashboard sessions, MCP
// sessions, and expired OAuth2 access tokens.
func registerSweepJobs(sched gocron.Scheduler, rateLimiter *auth.LoginRateLimiter, sessions *auth.SessionStore, mcpSessions *mcp.SessionManager, oauthRepo repository.OAuthRepository, logger *zap.Logger) {
	sweepLogger := logger.Named("sweep")

	mustJob := func(name string, interval time.Duration, task func()) {
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(task),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			sweepLogger.Error("failed to register sweep job", zap.String("job", name), zap.Error(err))
		}
	}

	mustJob("login-rate-limiter", time.Minute, rateLimiter.Sweep)
	mustJob("dashboard-sessions", 5*time.Minute, sessions.Sweep)
	mustJob("mcp-sessions", 5*time.Minute, mcpSessions.Sweep)
	mustJob("oauth-tokens", time.Hour, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := oauthRepo.DeleteExpiredTokens(sweepCtx, time.Now())
		if err != nil {
			sweepLogger.Error("oauth token sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			sweepLogger.Info("swept expired oauth tokens", zap.Int64("count", n))
		}
	})
}

// bootstrapAdmin creates the env-var admin as a local admin row the first
// time the hub boots with an empty local_admins table. Once any local admin
// exists, SONDE_ADMIN_USER/SONDE_ADMIN_PASSWORD are ignored on every
// subsequent start.
func bootstrapAdmin(ctx context.Context, users repository.DashboardUserRepository, cfg *config.Config, logger *zap.Logger) error {
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil
	}
	count, err := users.CountLocalAdmins(ctx)
	if err != nil {
		return fmt.Errorf("counting local admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	if err := users.CreateLocalAdmin(ctx, &dbmodel.LocalAdmin{
		Username:     cfg.AdminUser,
		PasswordHash: hashed,
		Role:         "owner",
	}); err != nil {
		return fmt.Errorf("creating bootstrap admin: %w", err)
	}

	logger.Info("bootstrapped local admin from SONDE_ADMIN_USER", zap.String("username", cfg.AdminUser))
	return nil
}

// gormLogLevel maps the hub's log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "warn", "error":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
