package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/connectfour/internal/auth"
	"github.com/MarcoPoloResearchLab/connectfour/internal/board"
	"github.com/MarcoPoloResearchLab/connectfour/internal/replay"
	"github.com/MarcoPoloResearchLab/connectfour/internal/savedgames"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	playerIDContextKey       = "connectfour_player_id"
	accessTokenQueryKey      = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingGameStore        = errors.New("saved game store dependency required")
)

// SessionAuthenticator resolves the player behind a request.
type SessionAuthenticator interface {
	ValidateRequest(r *http.Request) (auth.PlayerClaims, error)
	ValidateToken(token string) (auth.PlayerClaims, error)
}

// GameStore is the saved-game persistence used by the HTTP layer.
type GameStore interface {
	Save(ctx context.Context, request savedgames.SaveRequest) (savedgames.SavedGame, error)
	Load(ctx context.Context, playerID savedgames.PlayerID) (*savedgames.SavedGame, error)
	ListForPlayer(ctx context.Context, playerID savedgames.PlayerID) ([]savedgames.SavedGame, error)
	Restore(ctx context.Context, playerID savedgames.PlayerID, gameID savedgames.GameID) (*savedgames.Restoration, error)
	UpdateStatus(ctx context.Context, playerID savedgames.PlayerID, gameID savedgames.GameID, status savedgames.GameStatus) (bool, error)
	Delete(ctx context.Context, playerID savedgames.PlayerID) error
}

type Dependencies struct {
	Sessions          SessionAuthenticator
	Games             GameStore
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Games == nil {
		return nil, errMissingGameStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:  deps.Sessions,
		games:     deps.Games,
		realtime:  realtime,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.POST("/boards/winning-line", handler.handleWinningLine)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/games", handler.handleSave)
	protected.GET("/games", handler.handleList)
	protected.GET("/games/latest", handler.handleLatest)
	protected.DELETE("/games", handler.handleDelete)
	protected.GET("/games/:game_id/restore", handler.handleRestore)
	protected.PATCH("/games/:game_id/status", handler.handleUpdateStatus)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	sessions  SessionAuthenticator
	games     GameStore
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

type savedGamePayload struct {
	PlayerID     int64          `json:"player_id"`
	GameID       int64          `json:"game_id"`
	Board        [][]int        `json:"board"`
	BoardStatus  string         `json:"board_status"`
	IsPlayerTurn bool           `json:"is_player_turn"`
	Status       string         `json:"status"`
	SavedAt      time.Time      `json:"saved_at"`
	Moves        replay.History `json:"moves,omitempty"`
	Revision     string         `json:"revision"`
}

func newSavedGamePayload(game savedgames.SavedGame) savedGamePayload {
	grid, status := game.Grid()
	moves, _ := game.Moves()
	return savedGamePayload{
		PlayerID:     game.PlayerID,
		GameID:       game.GameID,
		Board:        board.ToRows(grid),
		BoardStatus:  status.String(),
		IsPlayerTurn: game.IsPlayerTurn,
		Status:       game.GameStatus.String(),
		SavedAt:      game.SavedAt.UTC(),
		Moves:        moves,
		Revision:     game.Revision,
	}
}

type saveRequestPayload struct {
	GameID           int64          `json:"game_id"`
	Board            [][]int        `json:"board"`
	IsPlayerTurn     bool           `json:"is_player_turn"`
	Status           string         `json:"status"`
	Moves            replay.History `json:"moves"`
	ExpectedRevision string         `json:"expected_revision"`
}

func (h *httpHandler) handleSave(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}

	var request saveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	gameID, err := savedgames.NewGameID(request.GameID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_game_id"})
		return
	}
	status, err := savedgames.ParseGameStatus(request.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}

	saved, err := h.games.Save(c.Request.Context(), savedgames.SaveRequest{
		PlayerID:         playerID,
		GameID:           gameID,
		Grid:             board.FromRows(request.Board),
		IsPlayerTurn:     request.IsPlayerTurn,
		Status:           status,
		Moves:            request.Moves,
		ExpectedRevision: request.ExpectedRevision,
	})
	if err != nil {
		h.respondStoreError(c, "failed to save game", err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		PlayerID:  saved.PlayerID,
		EventType: RealtimeEventGameSaved,
		GameID:    saved.GameID,
		Status:    saved.GameStatus.String(),
		Revision:  saved.Revision,
		Timestamp: saved.SavedAt,
	})
	c.JSON(http.StatusOK, newSavedGamePayload(saved))
}

func (h *httpHandler) handleList(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}
	games, err := h.games.ListForPlayer(c.Request.Context(), playerID)
	if err != nil {
		h.respondStoreError(c, "failed to list games", err)
		return
	}
	payload := make([]savedGamePayload, 0, len(games))
	for _, game := range games {
		payload = append(payload, newSavedGamePayload(game))
	}
	c.JSON(http.StatusOK, gin.H{"games": payload})
}

func (h *httpHandler) handleLatest(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}
	game, err := h.games.Load(c.Request.Context(), playerID)
	if err != nil {
		h.respondStoreError(c, "failed to load latest game", err)
		return
	}
	if game == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, newSavedGamePayload(*game))
}

type restorePayload struct {
	Game             savedGamePayload   `json:"game"`
	Board            [][]int            `json:"board"`
	Source           string             `json:"source"`
	SnapshotMismatch bool               `json:"snapshot_mismatch"`
	MovesReplayed    int                `json:"moves_replayed"`
	MovesSkipped     int                `json:"moves_skipped"`
	WinningLine      []board.Coordinate `json:"winning_line"`
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	restoration, err := h.games.Restore(c.Request.Context(), playerID, gameID)
	if err != nil {
		h.respondStoreError(c, "failed to restore game", err)
		return
	}
	if restoration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	reconstruction := restoration.Reconstruction
	winningLine := restoration.WinningLine
	if winningLine == nil {
		winningLine = []board.Coordinate{}
	}
	c.JSON(http.StatusOK, restorePayload{
		Game:             newSavedGamePayload(restoration.Game),
		Board:            board.ToRows(reconstruction.Grid),
		Source:           string(reconstruction.Source),
		SnapshotMismatch: reconstruction.SnapshotMismatch,
		MovesReplayed:    len(reconstruction.Steps),
		MovesSkipped:     len(reconstruction.Skipped),
		WinningLine:      winningLine,
	})
}

type statusRequestPayload struct {
	Status string `json:"status"`
}

func (h *httpHandler) handleUpdateStatus(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}

	var request statusRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Status) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	status, err := savedgames.ParseGameStatus(request.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}

	matched, err := h.games.UpdateStatus(c.Request.Context(), playerID, gameID, status)
	if err != nil {
		h.respondStoreError(c, "failed to update game status", err)
		return
	}
	if !matched {
		c.Status(http.StatusNoContent)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		PlayerID:  playerID.Int64(),
		EventType: RealtimeEventGameStatusChanged,
		GameID:    gameID.Int64(),
		Status:    status.String(),
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}
	if err := h.games.Delete(c.Request.Context(), playerID); err != nil {
		h.respondStoreError(c, "failed to delete games", err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		PlayerID:  playerID.Int64(),
		EventType: RealtimeEventGamesDeleted,
	})
	c.Status(http.StatusNoContent)
}

type winningLineRequestPayload struct {
	Board [][]int `json:"board"`
}

type winningLineResponsePayload struct {
	WinningLine []board.Coordinate `json:"winning_line"`
	Winner      int                `json:"winner"`
	PieceCount  int                `json:"piece_count"`
	Full        bool               `json:"full"`
}

func (h *httpHandler) handleWinningLine(c *gin.Context) {
	var request winningLineRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	grid := board.FromRows(request.Board)
	line := board.FindWinningLine(grid)
	if line == nil {
		line = []board.Coordinate{}
	}
	c.JSON(http.StatusOK, winningLineResponsePayload{
		WinningLine: line,
		Winner:      int(board.WinningOwner(grid)),
		PieceCount:  grid.PieceCount(),
		Full:        grid.IsFull(),
	})
}

type eventPayload struct {
	Source    string `json:"source"`
	GameID    int64  `json:"gameId,omitempty"`
	Status    string `json:"status,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	playerID, ok := h.playerID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, playerID.Int64())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.writeEvent(c, realtimeEventHeartbeat, eventPayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC().Format(time.RFC3339)})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case message, open := <-stream:
			if !open {
				return
			}
			h.writeEvent(c, message.EventType, eventPayload{
				Source:    realtimeSourceBackend,
				GameID:    message.GameID,
				Status:    message.Status,
				Revision:  message.Revision,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
			})
		case tick := <-ticker.C:
			h.writeEvent(c, realtimeEventHeartbeat, eventPayload{Source: realtimeSourceBackend, Timestamp: tick.UTC().Format(time.RFC3339)})
		}
	}
}

func (h *httpHandler) writeEvent(c *gin.Context, eventType string, payload eventPayload) {
	c.SSEvent(eventType, payload)
	c.Writer.Flush()
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	var (
		claims auth.PlayerClaims
		err    error
	)
	if token := c.Query(accessTokenQueryKey); token != "" && c.GetHeader("Authorization") == "" {
		claims, err = h.sessions.ValidateToken(token)
	} else {
		claims, err = h.sessions.ValidateRequest(c.Request)
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(playerIDContextKey, claims.PlayerID)
	c.Next()
}

func (h *httpHandler) playerID(c *gin.Context) (savedgames.PlayerID, bool) {
	playerID, err := savedgames.NewPlayerID(c.GetInt64(playerIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return playerID, true
}

func gameIDParam(c *gin.Context) (savedgames.GameID, bool) {
	raw, err := strconv.ParseInt(c.Param("game_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_game_id"})
		return 0, false
	}
	gameID, err := savedgames.NewGameID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_game_id"})
		return 0, false
	}
	return gameID, true
}

func (h *httpHandler) respondStoreError(c *gin.Context, message string, err error) {
	fields := []zap.Field{zap.Error(err)}
	var serviceErr *savedgames.ServiceError
	if errors.As(err, &serviceErr) {
		fields = append(fields, zap.String("code", serviceErr.Code()))
	}

	switch {
	case errors.Is(err, savedgames.ErrSaveConflict):
		h.logger.Info(message, fields...)
		c.JSON(http.StatusConflict, gin.H{"error": "save_conflict"})
	case errors.Is(err, savedgames.ErrInvalidPlayerID),
		errors.Is(err, savedgames.ErrInvalidGameID),
		errors.Is(err, savedgames.ErrInvalidGameStatus),
		errors.Is(err, replay.ErrInvalidMoveHistory):
		h.logger.Warn(message, fields...)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error(message, fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failed"})
	}
}
