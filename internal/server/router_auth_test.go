package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/connectfour/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessions struct {
	claims      auth.PlayerClaims
	validateErr error
	tokens      []string
}

func (s *stubSessions) ValidateRequest(*http.Request) (auth.PlayerClaims, error) {
	return s.claims, s.validateErr
}

func (s *stubSessions) ValidateToken(token string) (auth.PlayerClaims, error) {
	s.tokens = append(s.tokens, token)
	return s.claims, s.validateErr
}

func runAuthorize(t *testing.T, sessions *stubSessions, request *http.Request) (*httptest.ResponseRecorder, *gin.Context, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{sessions: sessions, logger: zap.New(core)}
	handler.authorizeRequest(ctx)
	return recorder, ctx, logs
}

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/games", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")

	recorder, _, logs := runAuthorize(t, &stubSessions{validateErr: auth.ErrExpiredSessionToken}, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entries[0].Level)
	}
	if entries[0].Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entries[0].Message)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/games", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")

	recorder, _, logs := runAuthorize(t, &stubSessions{validateErr: errors.New("signature mismatch")}, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %#v", entries)
	}
}

func TestAuthorizeRequestStoresPlayerID(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/games", http.NoBody)
	sessions := &stubSessions{claims: auth.PlayerClaims{PlayerID: 42}}

	recorder, ctx, logs := runAuthorize(t, sessions, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got %d", recorder.Code)
	}
	if ctx.GetInt64(playerIDContextKey) != 42 {
		t.Fatalf("expected player id in context, got %d", ctx.GetInt64(playerIDContextKey))
	}
	if len(logs.All()) != 0 {
		t.Fatalf("expected no log entries")
	}
}

func TestAuthorizeRequestAcceptsQueryToken(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/events?access_token=query-token", http.NoBody)
	sessions := &stubSessions{claims: auth.PlayerClaims{PlayerID: 5}}

	_, ctx, _ := runAuthorize(t, sessions, request)

	if len(sessions.tokens) != 1 || sessions.tokens[0] != "query-token" {
		t.Fatalf("expected query token to be validated, got %v", sessions.tokens)
	}
	if ctx.GetInt64(playerIDContextKey) != 5 {
		t.Fatalf("expected player id from query token")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnvironment(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/games"},
		{http.MethodGet, "/games/latest"},
		{http.MethodPost, "/games"},
		{http.MethodDelete, "/games"},
		{http.MethodGet, "/games/1/restore"},
		{http.MethodPatch, "/games/1/status"},
		{http.MethodGet, "/events"},
	} {
		recorder := env.do(t, route.method, route.path, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, recorder.Code)
		}
	}
}
