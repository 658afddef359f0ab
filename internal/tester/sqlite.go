// Package tester provides shared fixtures for package tests.
package tester

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var databaseSequence atomic.Int64

// OpenSQLite opens a private in-memory database, migrates models into it and
// closes it when the test ends. A single connection serializes writers the
// same way the production SQLite setup does.
func OpenSQLite(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:surat_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}
	}
	return db
}

// MovableClock is a test clock whose time can be advanced.
type MovableClock struct {
	current atomic.Int64
}

// NewMovableClock starts a MovableClock at instant.
func NewMovableClock(instant time.Time) *MovableClock {
	clock := &MovableClock{}
	clock.Set(instant)
	return clock
}

// Now reports the current test time.
func (c *MovableClock) Now() time.Time {
	return time.Unix(0, c.current.Load()).UTC()
}

// Set moves the clock to instant.
func (c *MovableClock) Set(instant time.Time) {
	c.current.Store(instant.UnixNano())
}

// Advance moves the clock forward by delta.
func (c *MovableClock) Advance(delta time.Duration) {
	c.current.Add(int64(delta))
}

// StaticIDs issues predictable identifiers: prefix-1, prefix-2, ...
type StaticIDs struct {
	Prefix string
	next   atomic.Int64
}

// NewID returns the next identifier.
func (s *StaticIDs) NewID() (string, error) {
	return fmt.Sprintf("%s-%d", s.Prefix, s.next.Add(1)), nil
}
