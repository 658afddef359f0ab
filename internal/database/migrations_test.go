package database

import (
	"path/filepath"
	"testing"

	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/incoming"
	"github.com/suratdinas/backend/internal/numbering"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openMigrated(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "surat.db")
	database, err := Open(Config{Driver: DriverSQLite, DSN: databasePath, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	testContext.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := Migrate(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(Config{Driver: "oracle", DSN: "x"}); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(Config{Driver: DriverSQLite}); err == nil {
		testContext.Fatalf("expected missing dsn error")
	}
}

func TestMigrateCreatesEveryTable(testContext *testing.T) {
	database := openMigrated(testContext)
	for _, model := range Models() {
		if !database.Migrator().HasTable(model) {
			testContext.Fatalf("expected table for %T", model)
		}
	}

	// A second run is a no-op.
	if err := Migrate(database, zap.NewNop()); err != nil {
		testContext.Fatalf("second migration failed: %v", err)
	}
	var applied int64
	if err := database.Model(&migrationRecord{}).Count(&applied).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if applied != 1 {
		testContext.Fatalf("expected one recorded migration, got %d", applied)
	}
}

func TestApplyMigrationsBackfillsReservationState(testContext *testing.T) {
	database := openMigrated(testContext)
	if err := database.Where("1 = 1").Delete(&migrationRecord{}).Error; err != nil {
		testContext.Fatalf("failed to clear migration records: %v", err)
	}

	legacy := []string{
		"INSERT INTO outgoing_documents (id, kind, number, date, reservation_state, subject) VALUES ('filled', 'letter', 1, '2024-01-02 03:00:00', '', 'Undangan')",
		"INSERT INTO outgoing_documents (id, kind, number, date, reservation_state) VALUES ('empty', 'letter', 2, '2024-01-02 16:59:00', '')",
		"INSERT INTO outgoing_documents (id, kind, number, date, reservation_state) VALUES ('released', 'memo', 1, '2024-01-02 03:00:00', 'released')",
	}
	for _, statement := range legacy {
		if err := database.Exec(statement).Error; err != nil {
			testContext.Fatalf("failed to insert legacy row: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	expected := map[string]numbering.State{
		"filled":   numbering.StateReserved,
		"empty":    numbering.StateSpare,
		"released": numbering.StateReleased,
	}
	for id, state := range expected {
		var stored documents.Document
		if err := database.Where("id = ?", id).Take(&stored).Error; err != nil {
			testContext.Fatalf("failed to reload %s: %v", id, err)
		}
		if stored.State != state {
			testContext.Fatalf("expected %s to be %s, got %s", id, state, stored.State)
		}
		if stored.Reserved != (state == numbering.StateReserved) {
			testContext.Fatalf("expected derived reserved flag for %s", id)
		}
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillReservationState).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestSyncCountersCatchesUpWithImportedRows(testContext *testing.T) {
	database := openMigrated(testContext)

	stale := []numbering.Counter{
		{ScopeKey: string(documents.KindLetter), CurrentValue: 2},
		{ScopeKey: incoming.AgendaScope(2025).Key, CurrentValue: 9},
	}
	if err := database.Create(&stale).Error; err != nil {
		testContext.Fatalf("failed to seed counters: %v", err)
	}
	imported := []string{
		"INSERT INTO outgoing_documents (id, kind, number, date, reservation_state) VALUES ('l5', 'letter', 5, '2025-01-02 03:00:00', 'spare')",
		"INSERT INTO letter_ins (id, no_agenda, tahun, agenda, disposed) VALUES ('a3', 3, 2025, false, false)",
		"INSERT INTO letter_ins (id, no_agenda, tahun, agenda, disposed) VALUES ('a7', 7, 2024, false, false)",
	}
	for _, statement := range imported {
		if err := database.Exec(statement).Error; err != nil {
			testContext.Fatalf("failed to import row: %v", err)
		}
	}

	if err := SyncCounters(database, zap.NewNop()); err != nil {
		testContext.Fatalf("sync failed: %v", err)
	}

	expected := map[string]int64{
		string(documents.KindLetter):    5,
		string(documents.KindMemo):      0,
		incoming.AgendaScope(2025).Key:  9,
		incoming.AgendaScope(2024).Key:  7,
		incoming.DispositionScope().Key: 0,
	}
	for key, value := range expected {
		var counter numbering.Counter
		if err := database.Where("scope_key = ?", key).Take(&counter).Error; err != nil {
			testContext.Fatalf("missing counter %s: %v", key, err)
		}
		if counter.CurrentValue != value {
			testContext.Fatalf("expected counter %s at %d, got %d", key, value, counter.CurrentValue)
		}
	}
}
