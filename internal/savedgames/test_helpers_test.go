package savedgames

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/connectfour/internal/board"
)

type stepClock struct {
	current time.Time
}

func newStepClock() *stepClock {
	return &stepClock{current: time.Unix(1752900000, 0).UTC()}
}

func (c *stepClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

type sequentialRevisions struct {
	next int
}

func (p *sequentialRevisions) NewRevision() (string, error) {
	p.next++
	return fmt.Sprintf("rev-%d", p.next), nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "savedgames.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&SavedGame{}); err != nil {
		t.Fatalf("failed to migrate saved games: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func newTestService(t *testing.T, cache Cache) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:         db,
		Clock:            newStepClock().Now,
		RevisionProvider: &sequentialRevisions{},
		Cache:            cache,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func mustPlayerID(t *testing.T, value int64) PlayerID {
	t.Helper()
	id, err := NewPlayerID(value)
	if err != nil {
		t.Fatalf("unexpected player id error: %v", err)
	}
	return id
}

func mustGameID(t *testing.T, value int64) GameID {
	t.Helper()
	id, err := NewGameID(value)
	if err != nil {
		t.Fatalf("unexpected game id error: %v", err)
	}
	return id
}

func gridWith(pieces map[board.Coordinate]board.Cell) board.Grid {
	var grid board.Grid
	for coordinate, cell := range pieces {
		grid[coordinate.Row][coordinate.Column] = cell
	}
	return grid
}

func countSavedGames(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&SavedGame{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count saved games: %v", err)
	}
	return count
}
