package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suratdinas/backend/internal/ids"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/serviceerror"
	"github.com/suratdinas/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew     = "documents.service.new"
	opCreate         = "documents.create"
	opCreateSpares   = "documents.create_spares"
	opList           = "documents.list"
	opGet            = "documents.get"
	opOpenAttachment = "documents.open_attachment"
	opUpdate         = "documents.update"
	opRelease        = "documents.release"
	opDestroy        = "documents.destroy"
	opTruncate       = "documents.truncate"
	opPeek           = "documents.peek_next_number"

	// MaxSpareCount bounds one pre-allocation batch.
	MaxSpareCount = 100

	queryIDAndKind = "id = ? AND kind = ?"
)

var (
	errMissingDatabase      = errors.New("database handle is required")
	errMissingStore         = errors.New("attachment store is required")
	errInvalidKind          = errors.New("document kind is required")
	errMissingRequired      = errors.New("classification and level are required")
	errAdminOnly            = errors.New("only administrators may perform this operation")
	errInvalidSpareCount    = fmt.Errorf("spare count must be between 1 and %d", MaxSpareCount)
	errMissingDate          = errors.New("date is required")
	errTodayAlreadyNumbered = errors.New("a document is already dated today; yesterday can no longer be numbered")
	errNotFound             = errors.New("document not found")
	errOtherDepartment      = errors.New("document belongs to another department")
	errEditWindowClosed     = errors.New("the edit window of this document has closed")
	errNotReserved          = errors.New("document holds no content to release")
	errNoAttachment         = errors.New("document has no attachment")
)

// ServiceConfig describes the dependencies of a document service.
type ServiceConfig struct {
	Database   *gorm.DB
	Kind       Kind
	Allocator  *numbering.Allocator
	Policy     numbering.Policy
	Store      storage.Store
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service implements the numbered-slot lifecycle for one document kind.
type Service struct {
	db         *gorm.DB
	kind       Kind
	allocator  *numbering.Allocator
	policy     numbering.Policy
	store      storage.Store
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// Attachment is an uploaded file.
type Attachment = storage.Upload

// Download is an opened attachment. The caller closes Content.
type Download = storage.Download

// CreateInput describes a document created directly in the reserved state.
type CreateInput struct {
	Content
	Date       *time.Time
	Attachment *Attachment
}

// SpareInput describes a batch of pre-allocated slots.
type SpareInput struct {
	Date         time.Time
	Count        int
	DepartmentID string
}

// UpdateInput describes an edit or a claim of a slot.
type UpdateInput struct {
	Content
	Attachment *Attachment
}

// ListFilter narrows List results. Zero values do not filter.
type ListFilter struct {
	Start      *time.Time
	End        *time.Time
	Subject    string
	To         string
	Reserved   *bool
	RecentDays int
	Descending bool
}

// NewService constructs a document service for cfg.Kind.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerror.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, serviceerror.Internal(opServiceNew, "invalid_kind", errors.Join(errInvalidKind, err))
	}
	if cfg.Store == nil {
		return nil, serviceerror.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	allocator := cfg.Allocator
	if allocator == nil {
		allocator = numbering.NewAllocator()
	}
	policy := cfg.Policy
	if policy.EditWindow <= 0 || policy.Location == nil {
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
		kind:       cfg.Kind,
		allocator:  allocator,
		policy:     policy,
		store:      cfg.Store,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger.With(zap.String("kind", string(cfg.Kind))),
	}, nil
}

// Kind reports the document kind the service manages.
func (s *Service) Kind() Kind {
	return s.kind
}

// Create numbers and stores a reserved document.
func (s *Service) Create(ctx context.Context, caller numbering.Caller, input CreateInput) (Document, error) {
	if !present(input.ClassificationID) || !present(input.LevelID) {
		return Document{}, serviceerror.Validation(opCreate, "missing_required_fields", errMissingRequired)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Document{}, serviceerror.Internal(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	date := now
	if input.Date != nil && !input.Date.IsZero() {
		date = input.Date.UTC()
	}
	department := caller.DepartmentID
	if caller.IsAdmin && present(input.DepartmentID) {
		department = *input.DepartmentID
	}

	document := Document{
		ID:           id,
		Kind:         s.kind,
		Date:         date,
		State:        numbering.StateReserved,
		Reserved:     true,
		LastReserved: &now,
		UserID:       optional(caller.UserID),
		UpdateUserID: optional(caller.UserID),
		DepartmentID: optional(department),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	input.Content.applyTo(&document)
	if document.AttachmentCount == nil {
		zero := 0
		document.AttachmentCount = &zero
	}

	storedKey, err := s.saveAttachment(opCreate, input.Attachment, &document)
	if err != nil {
		return Document{}, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		block, err := s.allocator.Allocate(tx, s.kind.Scope(), 1)
		if err != nil {
			return err
		}
		document.Number = block.First
		return tx.Create(&document).Error
	})
	if txErr != nil {
		s.discardAttachment(storedKey)
		return Document{}, s.classifyWriteError(opCreate, txErr)
	}
	return document, nil
}

// CreateSpares pre-allocates count consecutive slots dated at the end of the
// requested day. Only administrators may do this.
func (s *Service) CreateSpares(ctx context.Context, caller numbering.Caller, input SpareInput) ([]Document, error) {
	if !caller.IsAdmin {
		return nil, serviceerror.Permission(opCreateSpares, "admin_only", errAdminOnly)
	}
	if input.Count < 1 || input.Count > MaxSpareCount {
		return nil, serviceerror.Validation(opCreateSpares, "invalid_count", errInvalidSpareCount)
	}
	if input.Date.IsZero() {
		return nil, serviceerror.Validation(opCreateSpares, "missing_date", errMissingDate)
	}

	now := s.clock()
	if s.policy.IsYesterday(input.Date, now) {
		startToday := s.policy.StartOfDay(now)
		var today int64
		err := s.db.WithContext(ctx).Model(&Document{}).
			Where("kind = ? AND date >= ? AND date < ?", string(s.kind), startToday.UTC(), startToday.AddDate(0, 0, 1).UTC()).
			Count(&today).Error
		if err != nil {
			s.logError(opCreateSpares, "today_lookup_failed", err)
			return nil, serviceerror.Internal(opCreateSpares, "today_lookup_failed", err)
		}
		if today > 0 {
			return nil, serviceerror.Validation(opCreateSpares, "today_already_numbered", errTodayAlreadyNumbered)
		}
	}

	date := s.policy.EndOfDay(input.Date).UTC()
	spares := make([]Document, input.Count)
	for index := range spares {
		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreateSpares, "id_generation_failed", err)
			return nil, serviceerror.Internal(opCreateSpares, "id_generation_failed", err)
		}
		spares[index] = Document{
			ID:           id,
			Kind:         s.kind,
			Date:         date,
			State:        numbering.StateSpare,
			UserID:       optional(caller.UserID),
			DepartmentID: optional(input.DepartmentID),
			CreatedAt:    now.UTC(),
			UpdatedAt:    now.UTC(),
		}
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		block, err := s.allocator.Allocate(tx, s.kind.Scope(), input.Count)
		if err != nil {
			return err
		}
		for index, number := range block.Values() {
			spares[index].Number = number
		}
		return tx.Create(&spares).Error
	})
	if txErr != nil {
		return nil, s.classifyWriteError(opCreateSpares, txErr)
	}
	return spares, nil
}

// List returns the documents visible to caller ordered by number.
func (s *Service) List(ctx context.Context, caller numbering.Caller, filter ListFilter) ([]Document, error) {
	query := s.db.WithContext(ctx).Model(&Document{}).Where("kind = ?", string(s.kind))

	if !caller.IsAdmin {
		if filter.Reserved != nil {
			query = query.Where("(department_id = ? OR department_id IS NULL OR department_id = '')", caller.DepartmentID)
		} else {
			query = query.Where("department_id = ?", caller.DepartmentID)
		}
	}
	if filter.Reserved != nil {
		if *filter.Reserved {
			query = query.Where("reservation_state = ?", string(numbering.StateReserved))
		} else {
			query = query.Where("reservation_state <> ?", string(numbering.StateReserved))
		}
	}
	if filter.Start != nil {
		query = query.Where("date >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		query = query.Where("date <= ?", filter.End.UTC())
	}
	if subject := strings.TrimSpace(filter.Subject); subject != "" {
		query = query.Where("LOWER(subject) LIKE ?", "%"+strings.ToLower(subject)+"%")
	}
	if to := strings.TrimSpace(filter.To); to != "" {
		query = query.Where("LOWER(recipient) LIKE ?", "%"+strings.ToLower(to)+"%")
	}
	if filter.RecentDays > 0 {
		now := s.clock().UTC()
		query = query.Where("created_at >= ? AND created_at <= ?", now.AddDate(0, 0, -filter.RecentDays), now)
	}

	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "number"}, Desc: filter.Descending})

	documents := make([]Document, 0)
	if err := query.Find(&documents).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, serviceerror.Internal(opList, "query_failed", err)
	}
	return documents, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, caller numbering.Caller, id string) (Document, error) {
	document, err := s.find(s.db.WithContext(ctx), opGet, id, false)
	if err != nil {
		return Document{}, err
	}
	if !document.visibleTo(caller) {
		return Document{}, serviceerror.Permission(opGet, "other_department", errOtherDepartment)
	}
	return document, nil
}

// OpenAttachment opens the stored file of a document for download.
func (s *Service) OpenAttachment(ctx context.Context, caller numbering.Caller, id string) (Download, error) {
	document, err := s.find(s.db.WithContext(ctx), opOpenAttachment, id, false)
	if err != nil {
		return Download{}, err
	}
	if !document.visibleTo(caller) {
		return Download{}, serviceerror.Permission(opOpenAttachment, "other_department", errOtherDepartment)
	}
	if !document.HasAttachment() {
		return Download{}, serviceerror.NotFound(opOpenAttachment, "no_attachment", errNoAttachment)
	}
	content, err := s.store.Open(*document.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return Download{}, serviceerror.NotFound(opOpenAttachment, "file_missing", err)
	}
	if err != nil {
		s.logError(opOpenAttachment, "open_failed", err, zap.String("document_id", id))
		return Download{}, serviceerror.Internal(opOpenAttachment, "open_failed", err)
	}
	filename := *document.FilePath
	if document.Filename != nil && *document.Filename != "" {
		filename = *document.Filename
	}
	return Download{Filename: filename, Content: content}, nil
}

// Update edits a reserved document or claims a spare or released one.
//
// Edits keep the owner, department and reservation time and are refused once
// the edit window has passed. Claims make the caller the owner, stamp a fresh
// reservation time and take the caller's department; administrators may name
// another department.
func (s *Service) Update(ctx context.Context, caller numbering.Caller, id string, input UpdateInput) (Document, error) {
	var document Document
	var previousKey string

	storedKey, err := s.saveAttachment(opUpdate, input.Attachment, nil)
	if err != nil {
		return Document{}, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.find(tx, opUpdate, id, true)
		if err != nil {
			return err
		}
		document = found
		if !document.visibleTo(caller) {
			return serviceerror.Permission(opUpdate, "other_department", errOtherDepartment)
		}

		now := s.clock().UTC()
		claiming := document.State.Claimable()
		if !claiming && !s.policy.EditAllowed(document.LastReserved, now) {
			return serviceerror.Permission(opUpdate, "edit_window_closed", errEditWindowClosed)
		}
		if !document.State.CanTransition(numbering.StateReserved) {
			return serviceerror.Conflict(opUpdate, "invalid_transition", fmt.Errorf("cannot reserve a %s slot", document.State))
		}

		input.Content.applyTo(&document)
		if claiming {
			if !present(document.ClassificationID) || !present(document.LevelID) {
				return serviceerror.Validation(opUpdate, "missing_required_fields", errMissingRequired)
			}
			document.LastReserved = &now
			document.UserID = optional(caller.UserID)
			switch {
			case caller.IsAdmin && present(input.DepartmentID):
				document.DepartmentID = optional(*input.DepartmentID)
			case !caller.IsAdmin:
				document.DepartmentID = optional(caller.DepartmentID)
			}
		}
		if document.AttachmentCount == nil {
			zero := 0
			document.AttachmentCount = &zero
		}
		document.State = numbering.StateReserved
		document.Reserved = true
		document.UpdateUserID = optional(caller.UserID)

		if storedKey != "" {
			if document.HasAttachment() {
				previousKey = *document.FilePath
			}
			name := input.Attachment.Name
			document.Filename = &name
			key := storedKey
			document.FilePath = &key
		}
		return tx.Save(&document).Error
	})
	if txErr != nil {
		s.discardAttachment(storedKey)
		return Document{}, s.classifyWriteError(opUpdate, txErr)
	}
	s.discardAttachment(previousKey)
	return document, nil
}

// Release clears a reserved document's content while its number stays taken.
func (s *Service) Release(ctx context.Context, caller numbering.Caller, id string) (Document, error) {
	var document Document
	var previousKey string

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.find(tx, opRelease, id, true)
		if err != nil {
			return err
		}
		document = found
		if !document.visibleTo(caller) {
			return serviceerror.Permission(opRelease, "other_department", errOtherDepartment)
		}
		if !document.State.CanTransition(numbering.StateReleased) {
			return serviceerror.Conflict(opRelease, "not_reserved", errNotReserved)
		}
		if document.HasAttachment() {
			previousKey = *document.FilePath
		}
		document.release()
		return tx.Save(&document).Error
	})
	if txErr != nil {
		return Document{}, s.classifyWriteError(opRelease, txErr)
	}
	s.discardAttachment(previousKey)
	return document, nil
}

// Destroy removes a document row permanently. Only administrators may do this.
func (s *Service) Destroy(ctx context.Context, caller numbering.Caller, id string) error {
	if !caller.IsAdmin {
		return serviceerror.Permission(opDestroy, "admin_only", errAdminOnly)
	}
	var previousKey string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := s.find(tx, opDestroy, id, true)
		if err != nil {
			return err
		}
		if document.HasAttachment() {
			previousKey = *document.FilePath
		}
		return tx.Where(queryIDAndKind, id, string(s.kind)).Delete(&Document{}).Error
	})
	if txErr != nil {
		return s.classifyWriteError(opDestroy, txErr)
	}
	s.discardAttachment(previousKey)
	return nil
}

// Truncate removes every document of the kind and restarts its numbering.
// Only administrators may do this.
func (s *Service) Truncate(ctx context.Context, caller numbering.Caller) (int64, error) {
	if !caller.IsAdmin {
		return 0, serviceerror.Permission(opTruncate, "admin_only", errAdminOnly)
	}
	var removed int64
	var keys []string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Document{}).
			Where("kind = ? AND file_path IS NOT NULL AND file_path <> ''", string(s.kind)).
			Pluck("file_path", &keys).Error; err != nil {
			return err
		}
		result := tx.Where("kind = ?", string(s.kind)).Delete(&Document{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected
		return s.allocator.Reset(tx, s.kind.Scope().Key)
	})
	if txErr != nil {
		return 0, s.classifyWriteError(opTruncate, txErr)
	}
	for _, key := range keys {
		s.discardAttachment(key)
	}
	return removed, nil
}

// PeekNextNumber returns the number the next created document would receive.
func (s *Service) PeekNextNumber(ctx context.Context) (int64, error) {
	next, err := s.allocator.Peek(s.db.WithContext(ctx), s.kind.Scope())
	if err != nil {
		s.logError(opPeek, "peek_failed", err)
		return 0, err
	}
	return next, nil
}

func (s *Service) find(db *gorm.DB, operation, id string, lock bool) (Document, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var document Document
	err := query.Where(queryIDAndKind, id, string(s.kind)).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, serviceerror.NotFound(operation, "not_found", errNotFound)
	}
	if err != nil {
		s.logError(operation, "document_select_failed", err, zap.String("document_id", id))
		return Document{}, serviceerror.Internal(operation, "document_select_failed", err)
	}
	return document, nil
}

// saveAttachment stores the upload before the transaction opens so a slow disk
// never holds the counter row lock. When document is set its file fields are
// filled in.
func (s *Service) saveAttachment(operation string, attachment *Attachment, document *Document) (string, error) {
	if attachment == nil || attachment.Content == nil {
		return "", nil
	}
	key, err := s.store.Save(attachment.Name, attachment.Content)
	if err != nil {
		s.logError(operation, "attachment_save_failed", err)
		return "", serviceerror.Internal(operation, "attachment_save_failed", err)
	}
	if document != nil {
		name := attachment.Name
		document.Filename = &name
		stored := key
		document.FilePath = &stored
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

func (s *Service) classifyWriteError(operation string, err error) error {
	if _, ok := serviceerror.As(err); ok {
		return err
	}
	if serviceerror.IsDuplicateKey(err) {
		return serviceerror.Conflict(operation, "number_exists", err)
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
	s.logger.Error("documents service error", attrs...)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
