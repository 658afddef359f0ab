// Package database opens the configured SQL backend and keeps its schema current.
package database

import (
	"fmt"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/incoming"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/reference"
	"github.com/suratdinas/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config selects the backend. MySQL DSNs need parseTime=true.
type Config struct {
	Driver string
	DSN    string
	Logger *zap.Logger
}

// Open connects to the configured database. SQLite is limited to one open
// connection so writers queue instead of failing with SQLITE_BUSY.
func Open(cfg Config) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database opened", zap.String("driver", driver))
	}
	return db, nil
}

// Models lists every table the service owns.
func Models() []any {
	models := []any{&numbering.Counter{}, &users.User{}, &documents.Document{}}
	models = append(models, reference.Models()...)
	models = append(models, incoming.Models()...)
	return append(models, &migrationRecord{})
}

// Migrate creates or updates the schema and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	if err := applyMigrations(db, logger); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("database schema ready")
	}
	return nil
}
