package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HandlerResult is what a pack handler returns for one probe invocation.
// StatusCode is always populated for HTTP-based handlers so the executor's
// retry policy can inspect it without the handler needing to know about
// retry semantics itself.
type HandlerResult struct {
	StatusCode int
	Data       json.RawMessage
}

// Handler invokes one probe against a configured integration. A non-nil
// error means the call never produced an HTTP response (DNS failure,
// connection refused, timeout) and is always retryable; a populated
// HandlerResult with a non-2xx StatusCode is retried only per the executor's
// status-code policy.
type Handler func(ctx context.Context, cfg Config, probe string, params json.RawMessage) (HandlerResult, error)

// NewGenericRESTHandler returns a Handler that issues an HTTP GET (or POST
// when params is non-empty) against cfg.Endpoint + "/" + probe, applying
// the configured auth method as a header. This is the default handler used
// by any pack type that doesn't register a more specific one — most
// HTTP-based diagnostic packs fit this shape.
func NewGenericRESTHandler(client *http.Client) Handler {
	return func(ctx context.Context, cfg Config, probe string, params json.RawMessage) (HandlerResult, error) {
		method := http.MethodGet
		var body io.Reader
		hasBody := len(params) > 0
		if hasBody {
			method = http.MethodPost
			body = bytes.NewReader(params)
		}

		req, err := http.NewRequestWithContext(ctx, method, cfg.Endpoint+"/"+probe, body)
		if err != nil {
			return HandlerResult{}, fmt.Errorf("integration: build request: %w", err)
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}
		if hasBody {
			req.Header.Set("Content-Type", "application/json")
		}
		applyAuth(req, cfg.Credentials)

		resp, err := client.Do(req)
		if err != nil {
			return HandlerResult{}, fmt.Errorf("integration: request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return HandlerResult{}, fmt.Errorf("integration: read response: %w", err)
		}
		return HandlerResult{StatusCode: resp.StatusCode, Data: data}, nil
	}
}

func applyAuth(req *http.Request, creds Credentials) {
	switch creds.Method {
	case AuthAPIKey:
		req.Header.Set("X-API-Key", creds.APIKey)
	case AuthBearerToken:
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	case AuthOAuth2:
		if creds.OAuth2 != nil {
			req.Header.Set("Authorization", "Bearer "+creds.OAuth2.AccessToken)
		}
	}
}
