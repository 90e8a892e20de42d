package main

import (
	"bytes"
	"context"
	"go/format"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/connectfour/internal/config"
	"github.com/MarcoPoloResearchLab/connectfour/internal/savedgames"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const testSigningSecret = "command-test-signing-secret"

func executeCommand(t *testing.T, configViper *viper.Viper, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCommand(configViper)
	var output bytes.Buffer
	rootCmd.SetOut(&output)
	rootCmd.SetErr(&output)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return output.String(), err
}

func TestTokenCommandIssuesUsableToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	databasePath := filepath.Join(t.TempDir(), "flow.db")

	output, err := executeCommand(t, viper.New(), "token", "--player-id", "7", "--signing-secret", testSigningSecret, "--database-path", databasePath)
	if err != nil {
		t.Fatalf("token command failed: %v (%s)", err, output)
	}
	token := strings.TrimSpace(output)
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected a JWT, got %q", token)
	}

	configViper := config.NewViper()
	configViper.Set("auth.signing_secret", testSigningSecret)
	configViper.Set("database.path", databasePath)
	appConfig, err := config.Load(configViper)
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	gameStore, err := openStore(context.Background(), appConfig, zap.NewNop())
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	defer gameStore.close()

	handler, err := newHandler(appConfig, gameStore.games, zap.NewNop())
	if err != nil {
		t.Fatalf("handler construction failed: %v", err)
	}

	body := `{"game_id":42,"board":[[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[1,0,0,0,0,0,0]]}`
	request := httptest.NewRequest(http.MethodPost, "/games", strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected save to succeed with the issued token, got %d: %s", recorder.Code, recorder.Body.String())
	}

	saved, err := gameStore.games.Find(context.Background(), 7, 42)
	if err != nil || saved == nil {
		t.Fatalf("expected saved game for player 7, got %#v (%v)", saved, err)
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	if _, err := executeCommand(t, viper.New(), "token", "--player-id", "7"); err == nil {
		t.Fatalf("expected missing signing secret to fail")
	}
}

func TestPurgeCommandDeletesPlayerGamesAndCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	databasePath := filepath.Join(t.TempDir(), "purge.db")
	configViper := config.NewViper()
	configViper.Set("database.path", databasePath)
	configViper.Set("redis.address", mr.Addr())
	appConfig, err := config.LoadStorage(configViper)
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	gameStore, err := openStore(context.Background(), appConfig, zap.NewNop())
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	for _, request := range []savedgames.SaveRequest{
		{PlayerID: 5, GameID: 1},
		{PlayerID: 5, GameID: 2},
		{PlayerID: 6, GameID: 1},
	} {
		if _, err := gameStore.games.Save(context.Background(), request); err != nil {
			t.Fatalf("seed save failed: %v", err)
		}
	}
	if len(mr.Keys()) == 0 {
		t.Fatalf("expected saves to populate the cache")
	}
	gameStore.close()

	output, err := executeCommand(t, viper.New(), "purge", "--player-id", "5", "--database-path", databasePath, "--redis-address", mr.Addr())
	if err != nil {
		t.Fatalf("purge failed: %v (%s)", err, output)
	}
	if !strings.Contains(output, "player 5") {
		t.Fatalf("unexpected purge output %q", output)
	}

	gameStore, err = openStore(context.Background(), appConfig, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen store failed: %v", err)
	}
	defer gameStore.close()

	latest, err := gameStore.games.Load(context.Background(), 5)
	if err != nil || latest != nil {
		t.Fatalf("expected player 5 to have no games, got %#v (%v)", latest, err)
	}
	other, err := gameStore.games.Load(context.Background(), 6)
	if err != nil || other == nil {
		t.Fatalf("expected player 6 to keep their game, got %#v (%v)", other, err)
	}
}

func TestPurgeCommandRejectsInvalidPlayer(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "purge.db")
	if _, err := executeCommand(t, viper.New(), "purge", "--player-id", "0", "--database-path", databasePath); err == nil {
		t.Fatalf("expected invalid player id to fail")
	}
}

func TestCommandSourcesAreGofmtFormatted(t *testing.T) {
	paths, err := filepath.Glob("*.go")
	if err != nil || len(paths) == 0 {
		t.Fatalf("failed to list command sources: %v", err)
	}
	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read %s: %v", path, err)
		}
		formatted, err := format.Source(source)
		if err != nil {
			t.Fatalf("failed to format %s: %v", path, err)
		}
		if !bytes.Equal(source, formatted) {
			t.Fatalf("%s is not gofmt formatted", path)
		}
	}
}
