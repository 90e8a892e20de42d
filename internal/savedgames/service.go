package savedgames

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/connectfour/internal/board"
	"github.com/MarcoPoloResearchLab/connectfour/internal/replay"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase         = errors.New("database handle is required")
	errMissingRevisionProvider = errors.New("revision provider is required")
	errRevisionMismatch        = errors.New("stored revision does not match expected revision")
	noOpLogger                 = zap.NewNop()
)

// ServiceError carries a stable "operation.reason" code and the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "savedgames.service.new"
	opSave          = "savedgames.save"
	opLoad          = "savedgames.load"
	opFind          = "savedgames.find"
	opListForPlayer = "savedgames.list_for_player"
	opDelete        = "savedgames.delete"
	opUpdateStatus  = "savedgames.update_status"
	opRestore       = "savedgames.restore"
)

const (
	fieldPlayerID    = "player_id"
	fieldGameID      = "game_id"
	queryPlayer      = fieldPlayerID + " = ?"
	queryPlayerGame  = fieldPlayerID + " = ? AND " + fieldGameID + " = ?"
	orderOldest      = "saved_at ASC, id ASC"
	orderNewest      = "saved_at DESC, id DESC"
	versionIncrement = "saved_games.version + 1"

	reasonMissingDatabase    = "missing_database"
	reasonInvalidPlayerID    = "invalid_player_id"
	reasonInvalidGameID      = "invalid_game_id"
	reasonInvalidStatus      = "invalid_status"
	reasonInvalidMoveHistory = "invalid_move_history"
	reasonRevisionFailed     = "revision_failed"
	reasonRevisionLookup     = "revision_lookup_failed"
	reasonConflict           = "conflict"
	reasonUpsertFailed       = "upsert_failed"
	reasonReloadFailed       = "reload_failed"
	reasonQueryFailed        = "query_failed"
	reasonDeleteFailed       = "delete_failed"
	reasonUpdateFailed       = "update_failed"
	reasonCacheReadFailed    = "cache_read_failed"
	reasonCacheWriteFailed   = "cache_write_failed"
	reasonCacheMarkFailed    = "cache_mark_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the saved-game store.
type ServiceConfig struct {
	Database         *gorm.DB
	Clock            func() time.Time
	RevisionProvider RevisionProvider
	Cache            Cache
	Logger           *zap.Logger
}

// Service persists saved games with at most one record per player and game.
type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	revisions RevisionProvider
	cache     Cache
	logger    *zap.Logger
}

// NewService validates the configuration and constructs the store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.RevisionProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_revision_provider", errMissingRevisionProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:        cfg.Database,
		clock:     clock,
		revisions: cfg.RevisionProvider,
		cache:     cfg.Cache,
		logger:    logger,
	}, nil
}

// Save inserts the record for the player and game or overwrites it in place. The board,
// turn flag, saved-at time, status, move history and revision are all replaced.
func (s *Service) Save(ctx context.Context, request SaveRequest) (SavedGame, error) {
	if s.db == nil {
		s.logError(opSave, reasonMissingDatabase, errMissingDatabase)
		return SavedGame{}, newServiceError(opSave, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewPlayerID(request.PlayerID.Int64()); err != nil {
		return SavedGame{}, newServiceError(opSave, reasonInvalidPlayerID, err)
	}
	if _, err := NewGameID(request.GameID.Int64()); err != nil {
		return SavedGame{}, newServiceError(opSave, reasonInvalidGameID, err)
	}

	status := request.Status
	if status == "" {
		status = GameStatusInProgress
	}
	if !status.Valid() {
		err := fmt.Errorf("%w: %q", ErrInvalidGameStatus, string(status))
		return SavedGame{}, newServiceError(opSave, reasonInvalidStatus, err)
	}

	if err := request.Moves.Validate(); err != nil {
		return SavedGame{}, newServiceError(opSave, reasonInvalidMoveHistory, err)
	}
	historyText, err := replay.EncodeHistory(request.Moves)
	if err != nil {
		return SavedGame{}, newServiceError(opSave, reasonInvalidMoveHistory, err)
	}

	revision, err := s.revisions.NewRevision()
	if err != nil {
		s.logError(opSave, reasonRevisionFailed, err, s.keyFields(request.PlayerID, request.GameID)...)
		return SavedGame{}, newServiceError(opSave, reasonRevisionFailed, err)
	}

	record := SavedGame{
		PlayerID:        request.PlayerID.Int64(),
		GameID:          request.GameID.Int64(),
		BoardState:      board.Encode(request.Grid),
		IsPlayerTurn:    request.IsPlayerTurn,
		SavedAt:         s.clock().UTC(),
		GameStatus:      status,
		MoveHistoryJSON: historyText,
		Revision:        revision,
		Version:         1,
	}

	var stored SavedGame
	transactionError := s.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if expected := strings.TrimSpace(request.ExpectedRevision); expected != "" {
			var existing SavedGame
			err := transaction.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("revision").
				Where(queryPlayerGame, record.PlayerID, record.GameID).
				Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opSave, reasonConflict, fmt.Errorf("%w: %v", ErrSaveConflict, errRevisionMismatch))
			}
			if err != nil {
				s.logError(opSave, reasonRevisionLookup, err, s.keyFields(request.PlayerID, request.GameID)...)
				return newServiceError(opSave, reasonRevisionLookup, err)
			}
			if existing.Revision != expected {
				return newServiceError(opSave, reasonConflict, fmt.Errorf("%w: %v", ErrSaveConflict, errRevisionMismatch))
			}
		}

		upsert := transaction.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: fieldPlayerID}, {Name: fieldGameID}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"board_state":       record.BoardState,
				"is_player_turn":    record.IsPlayerTurn,
				"saved_at":          record.SavedAt,
				"game_status":       record.GameStatus,
				"move_history_json": record.MoveHistoryJSON,
				"revision":          record.Revision,
				"version":           gorm.Expr(versionIncrement),
			}),
		}).Create(&record)
		if upsert.Error != nil {
			if isUniqueViolation(upsert.Error) {
				s.logError(opSave, reasonConflict, upsert.Error, s.keyFields(request.PlayerID, request.GameID)...)
				return newServiceError(opSave, reasonConflict, fmt.Errorf("%w: %v", ErrSaveConflict, upsert.Error))
			}
			s.logError(opSave, reasonUpsertFailed, upsert.Error, s.keyFields(request.PlayerID, request.GameID)...)
			return newServiceError(opSave, reasonUpsertFailed, upsert.Error)
		}

		if err := transaction.Where(queryPlayerGame, record.PlayerID, record.GameID).Take(&stored).Error; err != nil {
			s.logError(opSave, reasonReloadFailed, err, s.keyFields(request.PlayerID, request.GameID)...)
			return newServiceError(opSave, reasonReloadFailed, err)
		}
		return nil
	})
	if transactionError != nil {
		return SavedGame{}, transactionError
	}

	if s.cache != nil {
		if err := s.cache.StoreLatest(ctx, stored); err != nil {
			s.logWarn(opSave, reasonCacheWriteFailed, err, s.keyFields(request.PlayerID, request.GameID)...)
		}
	}

	return stored, nil
}

// Load returns the player's most recently saved game, or nil when none exists.
func (s *Service) Load(ctx context.Context, playerID PlayerID) (*SavedGame, error) {
	if s.db == nil {
		s.logError(opLoad, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opLoad, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewPlayerID(playerID.Int64()); err != nil {
		return nil, newServiceError(opLoad, reasonInvalidPlayerID, err)
	}

	if s.cache != nil {
		cached, err := s.cache.Latest(ctx, playerID)
		if err != nil {
			s.logWarn(opLoad, reasonCacheReadFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
		} else if cached != nil {
			return cached, nil
		}
	}

	var latest SavedGame
	err := s.db.WithContext(ctx).
		Where(queryPlayer, playerID.Int64()).
		Order(orderNewest).
		Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opLoad, reasonQueryFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
		return nil, newServiceError(opLoad, reasonQueryFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.StoreLatest(ctx, latest); err != nil {
			s.logWarn(opLoad, reasonCacheWriteFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
		}
	}
	return &latest, nil
}

// Find returns the record for one player and game, or nil when none exists.
func (s *Service) Find(ctx context.Context, playerID PlayerID, gameID GameID) (*SavedGame, error) {
	if s.db == nil {
		s.logError(opFind, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opFind, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewPlayerID(playerID.Int64()); err != nil {
		return nil, newServiceError(opFind, reasonInvalidPlayerID, err)
	}
	if _, err := NewGameID(gameID.Int64()); err != nil {
		return nil, newServiceError(opFind, reasonInvalidGameID, err)
	}

	var game SavedGame
	err := s.db.WithContext(ctx).
		Where(queryPlayerGame, playerID.Int64(), gameID.Int64()).
		Take(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opFind, reasonQueryFailed, err, s.keyFields(playerID, gameID)...)
		return nil, newServiceError(opFind, reasonQueryFailed, err)
	}
	return &game, nil
}

// ListForPlayer returns the player's resumable games, oldest save first. Records whose
// board holds no pieces are left out.
func (s *Service) ListForPlayer(ctx context.Context, playerID PlayerID) ([]SavedGame, error) {
	if s.db == nil {
		s.logError(opListForPlayer, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListForPlayer, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewPlayerID(playerID.Int64()); err != nil {
		return nil, newServiceError(opListForPlayer, reasonInvalidPlayerID, err)
	}

	var stored []SavedGame
	if err := s.db.WithContext(ctx).
		Where(queryPlayer, playerID.Int64()).
		Order(orderOldest).
		Find(&stored).Error; err != nil {
		s.logError(opListForPlayer, reasonQueryFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
		return nil, newServiceError(opListForPlayer, reasonQueryFailed, err)
	}

	games := make([]SavedGame, 0, len(stored))
	for _, game := range stored {
		if !game.HasPieces() {
			continue
		}
		games = append(games, game)
	}
	return games, nil
}

// Delete removes every saved game of the player. Deleting nothing is not an error.
func (s *Service) Delete(ctx context.Context, playerID PlayerID) error {
	if s.db == nil {
		s.logError(opDelete, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDelete, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewPlayerID(playerID.Int64()); err != nil {
		return newServiceError(opDelete, reasonInvalidPlayerID, err)
	}

	result := s.db.WithContext(ctx).
		Where(queryPlayer, playerID.Int64()).
		Delete(&SavedGame{})
	if result.Error != nil {
		s.logError(opDelete, reasonDeleteFailed, result.Error, zap.Int64(fieldPlayerID, playerID.Int64()))
		return newServiceError(opDelete, reasonDeleteFailed, result.Error)
	}

	if s.cache != nil {
		if err := s.cache.MarkDeleted(ctx, playerID, s.clock().UTC()); err != nil {
			s.logWarn(opDelete, reasonCacheMarkFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
		}
	}
	s.loggerOrDefault().Debug("saved games deleted",
		zap.Int64(fieldPlayerID, playerID.Int64()),
		zap.Int64("rows", result.RowsAffected))
	return nil
}

// UpdateStatus changes only the status of the matching record; the saved-at time is kept.
// It reports whether a record matched. A missing record is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, playerID PlayerID, gameID GameID, status GameStatus) (bool, error) {
	if s.db == nil {
		s.logError(opUpdateStatus, reasonMissingDatabase, errMissingDatabase)
		return false, newServiceError(opUpdateStatus, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewPlayerID(playerID.Int64()); err != nil {
		return false, newServiceError(opUpdateStatus, reasonInvalidPlayerID, err)
	}
	if _, err := NewGameID(gameID.Int64()); err != nil {
		return false, newServiceError(opUpdateStatus, reasonInvalidGameID, err)
	}
	if !status.Valid() {
		err := fmt.Errorf("%w: %q", ErrInvalidGameStatus, string(status))
		return false, newServiceError(opUpdateStatus, reasonInvalidStatus, err)
	}

	result := s.db.WithContext(ctx).
		Model(&SavedGame{}).
		Where(queryPlayerGame, playerID.Int64(), gameID.Int64()).
		Updates(map[string]interface{}{
			"game_status": status,
			"version":     gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		s.logError(opUpdateStatus, reasonUpdateFailed, result.Error, s.keyFields(playerID, gameID)...)
		return false, newServiceError(opUpdateStatus, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		s.loggerOrDefault().Debug("no saved game to update", s.keyFields(playerID, gameID)...)
		return false, nil
	}

	s.refreshLatest(ctx, opUpdateStatus, playerID)
	return true, nil
}

// refreshLatest re-reads the player's newest record and offers it to the cache.
func (s *Service) refreshLatest(ctx context.Context, operation string, playerID PlayerID) {
	if s.cache == nil {
		return
	}
	var latest SavedGame
	err := s.db.WithContext(ctx).
		Where(queryPlayer, playerID.Int64()).
		Order(orderNewest).
		Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		s.logWarn(operation, reasonCacheWriteFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
		return
	}
	if err := s.cache.StoreLatest(ctx, latest); err != nil {
		s.logWarn(operation, reasonCacheWriteFailed, err, zap.Int64(fieldPlayerID, playerID.Int64()))
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT FAILED")
}

func (s *Service) keyFields(playerID PlayerID, gameID GameID) []zap.Field {
	return []zap.Field{
		zap.Int64(fieldPlayerID, playerID.Int64()),
		zap.Int64(fieldGameID, gameID.Int64()),
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Error("saved games service error", operationFields(operation, reason, err, fields)...)
}

func (s *Service) logWarn(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Warn("saved games service degraded", operationFields(operation, reason, err, fields)...)
}

func operationFields(operation, reason string, err error, fields []zap.Field) []zap.Field {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	return append(attrs, fields...)
}
