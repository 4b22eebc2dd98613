// Package config loads and validates the hub's environment-driven
// configuration, exposed through a cobra root command the way the
// teacher's cmd/server/main.go binds its own ARKEEP_* flags.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const minSecretLength = 16

// SecretSource selects where the hub's master secret is sourced from.
// Only "local" is implemented; "keyvault" is recognized but rejected
// explicitly rather than silently falling back, since Azure Key Vault
// loading is out of scope for this build.
type SecretSource string

const (
	SecretSourceLocal    SecretSource = "local"
	SecretSourceKeyvault SecretSource = "keyvault"
)

// Config is the hub's fully validated runtime configuration.
type Config struct {
	Host string
	Port int

	Secret       string
	SecretSource SecretSource

	DBPath string
	TLS    bool
	HubURL string

	AdminUser     string
	AdminPassword string
}

// Load reads environment variables into a Config and validates it. It
// never reads CLI flags itself — NewRootCmd binds pflag values to the same
// env vars via envOrDefault, and Load is also called directly by tests
// that want to exercise validation without building a cobra.Command.
func Load(logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		Host:          envOrDefault("HOST", "0.0.0.0"),
		Secret:        os.Getenv("SONDE_SECRET"),
		SecretSource:  SecretSource(envOrDefault("SONDE_SECRET_SOURCE", string(SecretSourceLocal))),
		DBPath:        envOrDefault("SONDE_DB_PATH", "./sonde.db"),
		HubURL:        os.Getenv("SONDE_HUB_URL"),
		AdminUser:     os.Getenv("SONDE_ADMIN_USER"),
		AdminPassword: os.Getenv("SONDE_ADMIN_PASSWORD"),
	}

	if cfg.Secret == "" {
		if legacy := os.Getenv("SONDE_API_KEY"); legacy != "" {
			logger.Warn("SONDE_API_KEY is deprecated, use SONDE_SECRET instead")
			cfg.Secret = legacy
		}
	}

	port, err := strconv.Atoi(envOrDefault("PORT", "3000"))
	if err != nil {
		return nil, fmt.Errorf("config: PORT must be an integer: %w", err)
	}
	cfg.Port = port

	tls, err := strconv.ParseBool(envOrDefault("SONDE_TLS", "false"))
	if err != nil {
		return nil, fmt.Errorf("config: SONDE_TLS must be a boolean: %w", err)
	}
	cfg.TLS = tls

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every invariant Load can't enforce purely by parsing:
// secret length, port range, and secret source support.
func (c *Config) Validate() error {
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("config: SONDE_SECRET must be at least %d characters", minSecretLength)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.SecretSource {
	case SecretSourceLocal:
	case SecretSourceKeyvault:
		return fmt.Errorf("config: SONDE_SECRET_SOURCE=keyvault is not implemented in this build")
	default:
		return fmt.Errorf("config: SONDE_SECRET_SOURCE must be %q or %q, got %q", SecretSourceLocal, SecretSourceKeyvault, c.SecretSource)
	}
	return nil
}

// NewRootCmd builds the "sonde-hub" cobra command, binding persistent flags
// to the same env vars Load reads directly. The flags show their env-derived
// defaults in --help; their parsed values are not read anywhere, so a flag
// does not override its env var.
func NewRootCmd(run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	root := &cobra.Command{
		Use:   "sonde-hub",
		Short: "Sonde hub — fleet diagnostics and MCP tool surface",
		Long: `Sonde hub routes diagnostic probes to agents and integrations,
runs runbooks, and exposes both a dashboard API and an MCP tool surface
AI clients can call directly.`,
		RunE: run,
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().String("host", envOrDefault("HOST", "0.0.0.0"), "Listen host")
	root.PersistentFlags().String("port", envOrDefault("PORT", "3000"), "Listen port")
	root.PersistentFlags().String("db-path", envOrDefault("SONDE_DB_PATH", "./sonde.db"), "SQLite database path")
	root.PersistentFlags().String("hub-url", envOrDefault("SONDE_HUB_URL", ""), "Self-referential base URL used to build OAuth2 redirect URIs")
	root.PersistentFlags().Bool("tls", envOrDefault("SONDE_TLS", "false") == "true", "Serve HTTPS with mTLS agent client certs")

	return root
}

var (
	version = "dev"
	commit  = "none"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sonde-hub %s (commit: %s)\n", version, commit)
		},
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
