package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/connectfour/internal/auth"
	"github.com/MarcoPoloResearchLab/connectfour/internal/database"
	"github.com/MarcoPoloResearchLab/connectfour/internal/savedgames"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "server-test-signing-secret"
	testIssuer        = "connectfour"
)

type testEnvironment struct {
	handler    http.Handler
	issuer     *auth.TokenIssuer
	games      *savedgames.Service
	dispatcher *RealtimeDispatcher
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	games, err := savedgames.NewService(savedgames.ServiceConfig{
		Database:         db,
		RevisionProvider: savedgames.NewUUIDRevisionProvider(),
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build saved game service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Sessions:          validator,
		Games:             games,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{handler: handler, issuer: issuer, games: games, dispatcher: dispatcher}
}

func (e *testEnvironment) tokenFor(t *testing.T, playerID int64) string {
	t.Helper()
	token, _, err := e.issuer.IssuePlayerToken(context.Background(), playerID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnvironment) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func emptyRows() [][]int {
	rows := make([][]int, 6)
	for index := range rows {
		rows[index] = make([]int, 7)
	}
	return rows
}
