package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillDreamPositions = "2026-08-10_backfill_dream_positions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDreamPositions, apply: backfillDreamPositions},
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
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillDreamPositions repairs rows written before position tracking
// existed: every row defaulted to position 0, so capture order is restored
// from the creation timestamps.
func backfillDreamPositions(db *gorm.DB) error {
	const statement = `
UPDATE dream_records SET position = (
	SELECT COUNT(*) FROM dream_records AS earlier
	WHERE earlier.created_at_s < dream_records.created_at_s
		OR (earlier.created_at_s = dream_records.created_at_s
			AND earlier.record_id < dream_records.record_id)
)
WHERE (SELECT COUNT(*) FROM dream_records WHERE position > 0) = 0
	AND (SELECT COUNT(*) FROM dream_records) > 1;`
	return db.Exec(statement).Error
}
