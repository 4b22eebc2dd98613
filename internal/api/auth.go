package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/auth"
)

const (
	oidcStateCookie    = "sonde_oidc_state"
	oidcVerifierCookie = "sonde_oidc_verifier"
	oidcCookieTTL      = 10 * time.Minute
	sessionCookieTTL   = 8 * time.Hour
)

// AuthHandler groups the dashboard's login/logout/SSO HTTP handlers.
// It depends on AuthService as the single entry point for every auth path.
type AuthHandler struct {
	svc    *auth.AuthService
	logger *zap.Logger
	secure bool // true in production (HTTPS), false in local development
}

// NewAuthHandler creates a new AuthHandler. secure controls the Secure flag
// on every cookie it sets — true in production, false over plain HTTP.
func NewAuthHandler(svc *auth.AuthService, logger *zap.Logger, secure bool) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		logger: logger.Named("auth_handler"),
		secure: secure,
	}
}

// -----------------------------------------------------------------------------
// Local auth
// -----------------------------------------------------------------------------

// loginRequest is the JSON body expected by POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login. On success it opens a session and
// sets the sonde_session cookie — there is no access token in the response
// body, unlike a bearer-token auth model.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		ErrBadRequest(w, "username and password are required")
		return
	}

	sessionID, err := h.svc.LoginLocal(r.Context(), clientIP(r), req.Username, req.Password)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.setSessionCookie(w, sessionID)
	Ok(w, envelope{"status": "ok"})
}

// Logout handles POST /api/v1/auth/logout. Missing or already-invalid
// cookies are treated as success — the caller's goal (no active session) is
// already satisfied.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		h.svc.Logout(cookie.Value)
	}
	h.clearSessionCookie(w)
	NoContent(w)
}

// -----------------------------------------------------------------------------
// Entra SSO flow
// -----------------------------------------------------------------------------

// SSOLogin handles GET /api/v1/auth/sso/login, redirecting to the Entra
// authorization endpoint with state and PKCE verifier stashed in short-lived
// cookies for SSOCallback to validate.
func (h *AuthHandler) SSOLogin(w http.ResponseWriter, r *http.Request) {
	redirectURL, state, codeVerifier, err := h.svc.SSOAuthorizationURL(r.Context())
	if err != nil {
		if errors.Is(err, auth.ErrProviderNotFound) {
			ErrBadRequest(w, "sso is not configured")
			return
		}
		h.logger.Error("failed to build sso authorization url", zap.Error(err))
		ErrInternal(w)
		return
	}

	expires := time.Now().Add(oidcCookieTTL)
	http.SetCookie(w, &http.Cookie{
		Name: oidcStateCookie, Value: state, Expires: expires,
		HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteLaxMode, Path: "/",
	})
	http.SetCookie(w, &http.Cookie{
		Name: oidcVerifierCookie, Value: codeVerifier, Expires: expires,
		HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteLaxMode, Path: "/",
	})

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// SSOCallback handles GET /api/v1/auth/sso/callback, completing the
// authorization code + PKCE exchange and opening a dashboard session.
func (h *AuthHandler) SSOCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oidcStateCookie)
	if err != nil {
		ErrBadRequest(w, "missing oidc state cookie")
		return
	}
	verifierCookie, err := r.Cookie(oidcVerifierCookie)
	if err != nil {
		ErrBadRequest(w, "missing oidc verifier cookie")
		return
	}
	h.clearOIDCCookies(w)

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		ErrBadRequest(w, "missing code or state parameter")
		return
	}

	sessionID, err := h.svc.SSOExchangeCode(r.Context(), code, state, stateCookie.Value, verifierCookie.Value)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	h.setSessionCookie(w, sessionID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Me handles GET /api/v1/auth/me, returning the caller's own identity as
// the Authenticate middleware already resolved it — no database lookup
// needed for the common "who am I" check.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := authCtx(r)
	if !ok {
		ErrUnauthorized(w)
		return
	}
	Ok(w, envelope{
		"type": ac.Type,
		"id":   ac.KeyID,
		"name": ac.KeyName,
		"role": ac.Role,
	})
}

// writeLoginError maps an auth error to the response it warrants without
// distinguishing wrong-password from disabled-account, to avoid user
// enumeration via status code.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		errJSON(w, http.StatusTooManyRequests, "too many failed login attempts", "rate_limited")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserDisabled), errors.Is(err, auth.ErrNotAuthorized):
		ErrUnauthorized(w)
	case errors.Is(err, auth.ErrOIDCStateMismatch), errors.Is(err, auth.ErrOIDCCodeVerifierMissing):
		ErrBadRequest(w, "sso state validation failed")
	default:
		h.logger.Error("login failed", zap.Error(err))
		ErrInternal(w)
	}
}

// -----------------------------------------------------------------------------
// Cookie helpers
// -----------------------------------------------------------------------------

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    sessionID,
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

func (h *AuthHandler) clearOIDCCookies(w http.ResponseWriter) {
	for _, name := range []string{oidcStateCookie, oidcVerifierCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
			Path:     "/",
		})
	}
}

// clientIP extracts the request's remote IP for login rate limiting,
// stripping the port RemoteAddr carries.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
