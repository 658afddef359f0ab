package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/suratdinas/backend/internal/auth"
	"github.com/suratdinas/backend/internal/ids"
	"github.com/suratdinas/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew   = "users.service.new"
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opProfile      = "users.profile"
	opList         = "users.list"
	opEnsureAdmin  = "users.ensure_admin"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingCredentials = errors.New("username and password are required")
	errUsernameTaken      = errors.New("username already exists")
	errUserNotFound       = errors.New("user not found")
	errInvalidCredentials = errors.New("invalid username or password")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service manages user accounts and password sign-in.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
	profiles   sync.Map
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username     string
	Password     string
	IsAdmin      bool
	DepartmentID string
}

// NewService constructs the account service.
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
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	username := normalize(input.Username)
	if username == "" || input.Password == "" {
		return User{}, serviceerror.Validation(opRegister, "missing_credentials", errMissingCredentials)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		s.logError(opRegister, "user_lookup_failed", err)
		return User{}, serviceerror.Internal(opRegister, "user_lookup_failed", err)
	}
	if existing > 0 {
		return User{}, serviceerror.Conflict(opRegister, "username_taken", errUsernameTaken)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, serviceerror.Internal(opRegister, "hash_failed", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, serviceerror.Internal(opRegister, "id_generation_failed", err)
	}

	user := User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      input.IsAdmin,
		DepartmentID: optional(input.DepartmentID),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if serviceerror.IsDuplicateKey(err) {
			return User{}, serviceerror.Conflict(opRegister, "username_taken", errUsernameTaken)
		}
		s.logError(opRegister, "user_insert_failed", err, zap.String("username", username))
		return User{}, serviceerror.Internal(opRegister, "user_insert_failed", err)
	}
	return user, nil
}

// Authenticate checks the password of username and returns the account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = normalize(username)
	if username == "" || password == "" {
		return User{}, serviceerror.Validation(opAuthenticate, "missing_credentials", errMissingCredentials)
	}

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, serviceerror.Unauthorized(opAuthenticate, "invalid_credentials", errInvalidCredentials)
	}
	if err != nil {
		s.logError(opAuthenticate, "user_lookup_failed", err)
		return User{}, serviceerror.Internal(opAuthenticate, "user_lookup_failed", err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, serviceerror.Unauthorized(opAuthenticate, "invalid_credentials", errInvalidCredentials)
		}
		s.logError(opAuthenticate, "password_compare_failed", err)
		return User{}, serviceerror.Internal(opAuthenticate, "password_compare_failed", err)
	}
	return user, nil
}

// Profile returns the account identified by userID.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	if cached, ok := s.profiles.Load(userID); ok {
		if user, ok := cached.(User); ok {
			return user, nil
		}
	}

	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, serviceerror.NotFound(opProfile, "user_not_found", errUserNotFound)
	}
	if err != nil {
		s.logError(opProfile, "user_lookup_failed", err, zap.String("user_id", userID))
		return User{}, serviceerror.Internal(opProfile, "user_lookup_failed", err)
	}
	s.profiles.Store(userID, user)
	return user, nil
}

// List returns accounts ordered by username, optionally filtered by a
// case-insensitive username substring.
func (s *Service) List(ctx context.Context, name string) ([]User, error) {
	query := s.db.WithContext(ctx).Model(&User{})
	if trimmed := normalize(name); trimmed != "" {
		query = query.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(trimmed)+"%")
	}
	users := make([]User, 0)
	if err := query.Order("username ASC").Find(&users).Error; err != nil {
		s.logError(opList, "user_query_failed", err)
		return nil, serviceerror.Internal(opList, "user_query_failed", err)
	}
	return users, nil
}

// EnsureAdmin creates the administrator account unless username already exists.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.Register(ctx, RegisterInput{Username: username, Password: password, IsAdmin: true})
	if err == nil {
		return true, nil
	}
	if serviceerror.KindOf(err) == serviceerror.KindConflict {
		return false, nil
	}
	s.logError(opEnsureAdmin, "register_failed", err)
	return false, err
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
	s.logger.Error("users service error", attrs...)
}

func optional(value string) *string {
	trimmed := normalize(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
