package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sonde-io/sonde-hub/internal/auth"
)

// stubAuthService lets transport tests control what Authenticate returns
// without standing up the full auth.AuthService dependency chain (db,
// JWT signer, OIDC provider) that package needs for a real instance.
type stubAuthService struct {
	ctx auth.AuthContext
	err error
}

func (s *stubAuthService) Authenticate(context.Context, *http.Request) (auth.AuthContext, error) {
	return s.ctx, s.err
}

func authServiceFromStub(s *stubAuthService) Authenticator { return s }

func newTransportForTest(t *testing.T) (*Transport, *stubAuthService) {
	t.Helper()
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sessions := NewSessionManager()
	stub := &stubAuthService{ctx: auth.AuthContext{Type: "api_key", KeyID: "key-1"}}
	return NewTransport(server, sessions, authServiceFromStub(stub), zap.NewNop()), stub
}

func rpcBody(method string) []byte {
	req := RPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method}
	b, _ := json.Marshal(req)
	return b
}

func TestTransport_PostWithoutSessionIDInitializesAndMintsHeader(t *testing.T) {
	transport, _ := newTransportForTest(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("initialize")))
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(SessionHeader))
}

func TestTransport_PostWithKnownSessionIDRoutesToIt(t *testing.T) {
	transport, _ := newTransportForTest(t)

	initReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("initialize")))
	initRec := httptest.NewRecorder()
	transport.ServeHTTP(initRec, initReq)
	sessionID := initRec.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	listReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("tools/list")))
	listReq.Header.Set(SessionHeader, sessionID)
	listRec := httptest.NewRecorder()
	transport.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestTransport_PostWithUnknownSessionIDReturns404(t *testing.T) {
	transport, _ := newTransportForTest(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("tools/list")))
	req.Header.Set(SessionHeader, "bogus-session")
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransport_DeleteTerminatesSession(t *testing.T) {
	transport, _ := newTransportForTest(t)

	initReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("initialize")))
	initRec := httptest.NewRecorder()
	transport.ServeHTTP(initRec, initReq)
	sessionID := initRec.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	delReq := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	delReq.Header.Set(SessionHeader, sessionID)
	delRec := httptest.NewRecorder()
	transport.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)

	afterReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("tools/list")))
	afterReq.Header.Set(SessionHeader, sessionID)
	afterRec := httptest.NewRecorder()
	transport.ServeHTTP(afterRec, afterReq)
	assert.Equal(t, http.StatusNotFound, afterRec.Code)
}

func TestTransport_UnauthenticatedPostRejected(t *testing.T) {
	server, _, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	sessions := NewSessionManager()
	stub := &stubAuthService{err: assert.AnError}
	transport := NewTransport(server, sessions, authServiceFromStub(stub), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(rpcBody("initialize")))
	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
