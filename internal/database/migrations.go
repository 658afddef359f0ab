package database

import (
	"errors"
	"time"

	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/numbering"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillReservationState = "2025-01-15_backfill_reservation_state"

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
		{name: migrationBackfillReservationState, apply: backfillReservationState},
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

// backfillReservationState derives the lifecycle state of rows imported from
// the boolean-flag schema: rows that were ever reserved keep their content,
// everything else becomes a claimable spare.
func backfillReservationState(db *gorm.DB) error {
	unset := "reservation_state IS NULL OR reservation_state = ''"
	if err := db.Model(&documents.Document{}).
		Where(unset).
		Where("last_reserved IS NOT NULL OR subject IS NOT NULL").
		Update("reservation_state", string(numbering.StateReserved)).Error; err != nil {
		return err
	}
	return db.Model(&documents.Document{}).
		Where(unset).
		Update("reservation_state", string(numbering.StateSpare)).Error
}
