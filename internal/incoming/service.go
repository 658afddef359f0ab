package incoming

import (
	"errors"
	"time"

	"github.com/suratdinas/backend/internal/ids"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/serviceerror"
	"github.com/suratdinas/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opServiceNew = "incoming.service.new"

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingStore    = errors.New("attachment store is required")
	errAdminOnly       = errors.New("only administrators may perform this operation")
)

// ServiceConfig describes the dependencies of the incoming correspondence service.
type ServiceConfig struct {
	Database   *gorm.DB
	Allocator  *numbering.Allocator
	Policy     numbering.Policy
	Store      storage.Store
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service registers incoming letters, keeps their agendas in step and
// numbers their dispositions.
type Service struct {
	db         *gorm.DB
	allocator  *numbering.Allocator
	policy     numbering.Policy
	store      storage.Store
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the incoming correspondence service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerror.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Store == nil {
		return nil, serviceerror.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	allocator := cfg.Allocator
	if allocator == nil {
		allocator = numbering.NewAllocator()
	}
	policy := cfg.Policy
	if policy.Location == nil {
		policy = numbering.NewPolicy(0, "")
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
	return &Service{
		db:         cfg.Database,
		allocator:  allocator,
		policy:     policy,
		store:      cfg.Store,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

func (s *Service) newID(operation string) (string, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return "", serviceerror.Internal(operation, "id_generation_failed", err)
	}
	return id, nil
}

func (s *Service) saveAttachment(operation string, upload *storage.Upload) (string, error) {
	if upload == nil || upload.Content == nil {
		return "", nil
	}
	key, err := s.store.Save(upload.Name, upload.Content)
	if err != nil {
		s.logError(operation, "attachment_save_failed", err)
		return "", serviceerror.Internal(operation, "attachment_save_failed", err)
	}
	return key, nil
}

func (s *Service) discardAttachment(key string) {
	if key == "" {
		return
	}
	if err := s.store.Remove(key); err != nil {
		s.logger.Warn("attachment removal failed", zap.String("file_path", key), zap.Error(err))
	}
}

func (s *Service) classifyWriteError(operation, duplicateReason string, err error) error {
	if _, ok := serviceerror.As(err); ok {
		return err
	}
	if serviceerror.IsDuplicateKey(err) {
		return serviceerror.Conflict(operation, duplicateReason, err)
	}
	s.logError(operation, "write_failed", err)
	return serviceerror.Internal(operation, "write_failed", err)
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
	s.logger.Error("incoming service error", attrs...)
}
