package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/connectfour/internal/savedgames"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationPurgeConnectionProbeRecords = "2026-10-01_purge_connection_probe_records"
	migrationNormalizeGameStatus         = "2026-10-01_normalize_game_status"

	connectionProbeStatus = "Test"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) (int64, error)
}

// Order matters: probe rows carry an unknown status and must go before normalization.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPurgeConnectionProbeRecords, apply: purgeConnectionProbeRecords},
		{name: migrationNormalizeGameStatus, apply: normalizeGameStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var affected int64
		transactionError := db.Transaction(func(transaction *gorm.DB) error {
			rows, applyErr := migration.apply(transaction)
			if applyErr != nil {
				return applyErr
			}
			affected = rows
			appliedAt := time.Now().UTC().Unix()
			return transaction.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if transactionError != nil {
			return transactionError
		}
		if logger != nil {
			logger.Info("database migration applied",
				zap.String("migration", migration.name),
				zap.Int64("rows", affected))
		}
	}
	return nil
}

func purgeConnectionProbeRecords(db *gorm.DB) (int64, error) {
	result := db.Where("game_status = ?", connectionProbeStatus).Delete(&savedgames.SavedGame{})
	return result.RowsAffected, result.Error
}

func normalizeGameStatus(db *gorm.DB) (int64, error) {
	known := []savedgames.GameStatus{
		savedgames.GameStatusInProgress,
		savedgames.GameStatusWon,
		savedgames.GameStatusLost,
		savedgames.GameStatusDraw,
	}
	result := db.Model(&savedgames.SavedGame{}).
		Where("game_status NOT IN ?", known).
		Update("game_status", savedgames.GameStatusInProgress)
	return result.RowsAffected, result.Error
}
