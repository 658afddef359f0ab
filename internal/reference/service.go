package reference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suratdinas/backend/internal/ids"
	"github.com/suratdinas/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew = "reference.service.new"
	opCreate     = "reference.create"
	opList       = "reference.list"
	opGet        = "reference.get"
	opUpdate     = "reference.update"
	opDelete     = "reference.delete"
	opTruncate   = "reference.truncate"
	opSeed       = "reference.seed"

	columnActive = "active"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingID       = errors.New("id is required")
	errMissingName     = errors.New("name is required")
	errIDExists        = errors.New("an entry with this id already exists")
	errNameExists      = errors.New("an entry with this name already exists")
	errNotFound        = errors.New("entry not found")
	errOldNameMismatch = errors.New("old name does not match the stored name")
	errNothingToUpdate = errors.New("nothing to update")
)

// ServiceConfig describes the dependencies of the lookup service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service reads and maintains lookup tables.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// CreateInput describes a new lookup row.
type CreateInput struct {
	ID     string
	Name   string
	Active *bool
}

// UpdateInput describes changes to a lookup row. OldName must match the stored
// name for kinds that require it.
type UpdateInput struct {
	Name    string
	OldName *string
	Active  *bool
}

// ListFilter narrows List results.
type ListFilter struct {
	Active *bool
}

// NewService constructs the lookup service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerror.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: idProvider, logger: logger}, nil
}

// Create inserts a lookup row.
func (s *Service) Create(ctx context.Context, kind Kind, input CreateInput) (Entry, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		if kind.DefaultName == "" {
			return Entry{}, serviceerror.Validation(opCreate, "missing_name", errMissingName)
		}
		name = kind.DefaultName
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		if !kind.GeneratedID {
			return Entry{}, serviceerror.Validation(opCreate, "missing_id", errMissingID)
		}
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreate, "id_generation_failed", err, zap.String("kind", kind.Name))
			return Entry{}, serviceerror.Internal(opCreate, "id_generation_failed", err)
		}
		id = generated
	}

	exists, err := s.exists(ctx, kind, "id = ?", id)
	if err != nil {
		s.logError(opCreate, "lookup_failed", err, zap.String("kind", kind.Name))
		return Entry{}, serviceerror.Internal(opCreate, "lookup_failed", err)
	}
	if exists {
		return Entry{}, serviceerror.Conflict(opCreate, "id_exists", errIDExists)
	}
	if kind.UniqueName {
		exists, err := s.exists(ctx, kind, "name = ?", name)
		if err != nil {
			s.logError(opCreate, "lookup_failed", err, zap.String("kind", kind.Name))
			return Entry{}, serviceerror.Internal(opCreate, "lookup_failed", err)
		}
		if exists {
			return Entry{}, serviceerror.Conflict(opCreate, "name_exists", errNameExists)
		}
	}

	now := s.clock().UTC()
	entry := Entry{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	query := s.db.WithContext(ctx).Table(kind.Table)
	if kind.HasActive {
		active := input.Active != nil && *input.Active
		entry.Active = &active
	} else {
		query = query.Omit(columnActive)
	}
	if err := query.Create(&entry).Error; err != nil {
		if serviceerror.IsDuplicateKey(err) {
			return Entry{}, serviceerror.Conflict(opCreate, "id_exists", err)
		}
		s.logError(opCreate, "insert_failed", err, zap.String("kind", kind.Name), zap.String("id", id))
		return Entry{}, serviceerror.Internal(opCreate, "insert_failed", err)
	}
	return entry, nil
}

// List returns every row of kind in its natural order.
func (s *Service) List(ctx context.Context, kind Kind, filter ListFilter) ([]Entry, error) {
	query := s.db.WithContext(ctx).Table(kind.Table)
	if kind.HasActive && filter.Active != nil {
		query = query.Where(columnActive+" = ?", *filter.Active)
	}
	if kind.OrderBy != "" {
		query = query.Order(kind.OrderBy)
	}
	entries := make([]Entry, 0)
	if err := query.Find(&entries).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("kind", kind.Name))
		return nil, serviceerror.Internal(opList, "query_failed", err)
	}
	return entries, nil
}

// Get returns one row of kind.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Table(kind.Table).Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, serviceerror.NotFound(opGet, "not_found", fmt.Errorf("%s %q: %w", kind.Name, id, errNotFound))
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("kind", kind.Name), zap.String("id", id))
		return Entry{}, serviceerror.Internal(opGet, "query_failed", err)
	}
	return entry, nil
}

// Update renames a row or toggles its active flag.
func (s *Service) Update(ctx context.Context, kind Kind, id string, input UpdateInput) (Entry, error) {
	existing, err := s.Get(ctx, kind, id)
	if err != nil {
		return Entry{}, err
	}
	if kind.RequireOldName && (input.OldName == nil || *input.OldName != existing.Name) {
		return Entry{}, serviceerror.Validation(opUpdate, "old_name_mismatch", errOldNameMismatch)
	}

	name := strings.TrimSpace(input.Name)
	updates := map[string]any{}
	if name != "" && name != existing.Name {
		if kind.UniqueName {
			taken, err := s.exists(ctx, kind, "name = ? AND id <> ?", name, id)
			if err != nil {
				s.logError(opUpdate, "lookup_failed", err, zap.String("kind", kind.Name))
				return Entry{}, serviceerror.Internal(opUpdate, "lookup_failed", err)
			}
			if taken {
				return Entry{}, serviceerror.Conflict(opUpdate, "name_exists", errNameExists)
			}
		}
		updates["name"] = name
	}
	if kind.HasActive && input.Active != nil {
		updates[columnActive] = *input.Active
	}
	if len(updates) == 0 {
		if name == existing.Name {
			return existing, nil
		}
		return Entry{}, serviceerror.Validation(opUpdate, "nothing_to_update", errNothingToUpdate)
	}
	updates["updated_at"] = s.clock().UTC()

	err = s.db.WithContext(ctx).Table(kind.Table).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		if serviceerror.IsDuplicateKey(err) {
			return Entry{}, serviceerror.Conflict(opUpdate, "name_exists", err)
		}
		s.logError(opUpdate, "update_failed", err, zap.String("kind", kind.Name), zap.String("id", id))
		return Entry{}, serviceerror.Internal(opUpdate, "update_failed", err)
	}
	return s.Get(ctx, kind, id)
}

// Delete removes one row of kind.
func (s *Service) Delete(ctx context.Context, kind Kind, id string) error {
	result := s.db.WithContext(ctx).Table(kind.Table).Where("id = ?", id).Delete(&Entry{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("kind", kind.Name), zap.String("id", id))
		return serviceerror.Internal(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return serviceerror.NotFound(opDelete, "not_found", errNotFound)
	}
	return nil
}

// Truncate removes every row of kind and returns how many were removed.
func (s *Service) Truncate(ctx context.Context, kind Kind) (int64, error) {
	result := s.db.WithContext(ctx).Table(kind.Table).Where("1 = 1").Delete(&Entry{})
	if result.Error != nil {
		s.logError(opTruncate, "delete_failed", result.Error, zap.String("kind", kind.Name))
		return 0, serviceerror.Internal(opTruncate, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// Seed inserts the default rows that are missing and returns how many were added.
func (s *Service) Seed(ctx context.Context) (int64, error) {
	var inserted int64
	now := s.clock().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range defaultSeeds() {
			for _, entry := range seed.entries {
				row := entry
				row.CreatedAt = now
				row.UpdatedAt = now
				query := tx.Table(seed.kind.Table).Clauses(clause.OnConflict{DoNothing: true})
				if !seed.kind.HasActive {
					query = query.Omit(columnActive)
				}
				result := query.Create(&row)
				if result.Error != nil {
					return result.Error
				}
				inserted += result.RowsAffected
			}
		}
		return nil
	})
	if err != nil {
		s.logError(opSeed, "insert_failed", err)
		return 0, serviceerror.Internal(opSeed, "insert_failed", err)
	}
	return inserted, nil
}

func (s *Service) exists(ctx context.Context, kind Kind, condition string, args ...any) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Table(kind.Table).Where(condition, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("reference service error", attrs...)
}
