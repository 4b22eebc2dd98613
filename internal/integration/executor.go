package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/dbmodel"
	"github.com/sonde-io/sonde-hub/internal/repository"
)

const maxAttempts = 3

// baseBackoff is the unit of the exponential backoff: after failed attempt
// n (counting from 0) the executor waits baseBackoff * 2^n before retrying.
const baseBackoff = 1 * time.Second

// Result mirrors the probe router's ProbeResponse shape for an
// integration-originated probe.
type Result struct {
	Status     string // success, error, timeout
	Data       json.RawMessage
	Error      string
	DurationMs int64
}

// Executor runs probes against HTTP-based integrations, applying the
// retry/OAuth-refresh policy uniformly regardless of which pack handler is
// invoked.
type Executor struct {
	client       *http.Client
	integrations repository.IntegrationRepository
	keeper       KeeperResolver
	logger       *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewExecutor creates an Executor. keeper may be nil if no Keeper
// integration is configured; credential references will then fail to
// resolve with a clear error rather than a nil pointer panic.
func NewExecutor(integrations repository.IntegrationRepository, keeper KeeperResolver, logger *zap.Logger) *Executor {
	client := &http.Client{Timeout: 30 * time.Second}
	return &Executor{
		client:       client,
		integrations: integrations,
		keeper:       keeper,
		logger:       logger.Named("integration"),
		handlers:     make(map[string]Handler),
		fallback:     NewGenericRESTHandler(client),
	}
}

// RegisterHandler installs a pack-type-specific handler, overriding the
// generic REST fallback for that type.
func (e *Executor) RegisterHandler(packType string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[packType] = h
}

func (e *Executor) handlerFor(packType string) Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if h, ok := e.handlers[packType]; ok {
		return h
	}
	return e.fallback
}

// Execute runs probe against the given integration. Total elapsed time is
// bounded by ctx's deadline regardless of backoff — a cancelled
// context aborts mid-backoff rather than completing the retry budget.
func (e *Executor) Execute(ctx context.Context, integ *dbmodel.Integration, probe string, params json.RawMessage) Result {
	start := time.Now()

	var cfg Config
	if err := json.Unmarshal([]byte(integ.ConfigBlob), &cfg); err != nil {
		return errorResult(start, fmt.Errorf("integration: malformed config: %w", err))
	}

	if err := resolveCredentialReferences(ctx, e.keeper, &cfg.Credentials); err != nil {
		return errorResult(start, err)
	}

	handler := e.handlerFor(integ.Type)

	var lastErr error
	var lastResult HandlerResult
	refreshedOnce := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := baseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Result{Status: "timeout", DurationMs: time.Since(start).Milliseconds()}
			}
		}

		result, err := handler(ctx, cfg, probe, params)
		if err != nil {
			lastErr = err
			e.recordEvent(ctx, integ.ID, probe, "network_error", err)
			if ctx.Err() != nil {
				return Result{Status: "timeout", DurationMs: time.Since(start).Milliseconds()}
			}
			continue // network errors are always retryable
		}
		lastResult = result
		lastErr = nil

		if result.StatusCode >= 200 && result.StatusCode < 300 {
			return Result{Status: "success", Data: result.Data, DurationMs: time.Since(start).Milliseconds()}
		}

		if result.StatusCode == http.StatusUnauthorized && attempt == 0 && !refreshedOnce &&
			cfg.Credentials.Method == AuthOAuth2 && cfg.Credentials.OAuth2 != nil &&
			cfg.Credentials.OAuth2.RefreshToken != "" && cfg.Credentials.OAuth2.RefreshURL != "" {
			if err := e.refreshOAuth2(ctx, cfg.Credentials.OAuth2); err != nil {
				e.recordEvent(ctx, integ.ID, probe, "oauth_refresh_failed", err)
				lastErr = err
				break
			}
			refreshedOnce = true
			e.persistRefreshedToken(ctx, integ, cfg)
			continue
		}

		if result.StatusCode >= 500 {
			lastErr = fmt.Errorf("integration: handler returned status %d", result.StatusCode)
			e.recordEvent(ctx, integ.ID, probe, "server_error", lastErr)
			continue
		}

		// 4xx other than the first-attempt 401 special case is not retryable.
		lastErr = fmt.Errorf("integration: handler returned status %d", result.StatusCode)
		e.recordEvent(ctx, integ.ID, probe, "client_error", lastErr)
		return Result{Status: "error", Error: lastErr.Error(), DurationMs: time.Since(start).Milliseconds(), Data: lastResult.Data}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("integration: exhausted retries")
	}
	return Result{Status: "error", Error: lastErr.Error(), DurationMs: time.Since(start).Milliseconds()}
}

// refreshOAuth2 exchanges the refresh token for a new access token via an
// out-of-band POST to RefreshURL. Mutates creds in place.
func (e *Executor) refreshOAuth2(ctx context.Context, creds *OAuth2Creds) error {
	form := strings.NewReader(
		"grant_type=refresh_token&refresh_token=" + creds.RefreshToken +
			"&client_id=" + creds.ClientID + "&client_secret=" + creds.ClientSecret,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.RefreshURL, form)
	if err != nil {
		return fmt.Errorf("integration: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("integration: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("integration: refresh endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("integration: decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("integration: refresh response missing access_token")
	}

	creds.AccessToken = body.AccessToken
	if body.RefreshToken != "" {
		creds.RefreshToken = body.RefreshToken
	}
	if body.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().UTC().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return nil
}

// persistRefreshedToken writes the new OAuth2 token state back to the
// integration row so the next probe reuses it instead of refreshing again.
func (e *Executor) persistRefreshedToken(ctx context.Context, integ *dbmodel.Integration, cfg Config) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		e.logger.Warn("integration: failed to re-encode config after refresh", zap.Error(err))
		return
	}
	integ.ConfigBlob = dbmodel.EncryptedString(encoded)
	if err := e.integrations.Update(ctx, integ); err != nil {
		e.logger.Warn("integration: failed to persist refreshed token", zap.Error(err))
	}
}

func (e *Executor) recordEvent(ctx context.Context, integrationID uuid.UUID, probe, causeName string, cause error) {
	event := &dbmodel.IntegrationEvent{
		IntegrationID: integrationID,
		Probe:         probe,
		CauseName:     causeName,
	}
	if cause != nil {
		event.ErrorName = trimmedError(cause)
	}
	if err := e.integrations.AppendEvent(ctx, event); err != nil {
		e.logger.Warn("integration: failed to append integration event", zap.Error(err))
	}
}

func trimmedError(err error) string {
	s := err.Error()
	const max = 200
	if len(s) > max {
		return s[:max]
	}
	return s
}

func errorResult(start time.Time, err error) Result {
	return Result{Status: "error", Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
}
