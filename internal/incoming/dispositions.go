package incoming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opCreateDisposition = "incoming.create_disposition"
	opListDispositions  = "incoming.list_dispositions"
	opGetDisposition    = "incoming.get_disposition"
	opUpdateDisposition = "incoming.update_disposition"
	opDeleteDisposition = "incoming.delete_disposition"
	opPeekDisposition   = "incoming.peek_next_disposition"
	opLetterStatus      = "incoming.letter_status"
	opStats             = "incoming.disposition_stats"

	defaultPageLimit = 50
	maxPageLimit     = 200
)

var (
	errDispositionNotFound   = errors.New("disposition not found")
	errLetterAlreadyDisposed = errors.New("incoming letter already has a disposition")
	errDispositionNumberUsed = errors.New("disposition number is already used")
	errMissingLetterID       = errors.New("incoming letter id is required")
	errMissingDispoDate      = errors.New("disposition date is required")
	errMissingRecipients     = errors.New("at least one disposition recipient is required")
	errMissingContent        = errors.New("disposition content is required")
	errContentTooLong        = fmt.Errorf("disposition content must not exceed %d characters", MaxDispositionContent)
	errInvalidDispoNumber    = errors.New("disposition number must be positive")
)

// DispositionInput describes a disposition. On update nil fields are left
// unchanged and LetterInID is ignored.
type DispositionInput struct {
	LetterInID string
	Number     *int64
	Date       *time.Time
	Recipients []string
	Content    *string
}

// DispositionFilter narrows ListDispositions. Page starts at 1.
type DispositionFilter struct {
	LetterInID string
	Year       int
	Page       int
	Limit      int
}

// DispositionPage is one page of dispositions, newest first.
type DispositionPage struct {
	Items      []Disposition `json:"data"`
	Page       int           `json:"currentPage"`
	Limit      int           `json:"rowsPerPage"`
	Total      int64         `json:"totalRows"`
	TotalPages int           `json:"totalPages"`
}

// DispositionStatus reports whether an incoming letter has been disposed.
type DispositionStatus struct {
	LetterInID  string       `json:"letterIn_id"`
	Disposed    bool         `json:"isDisposed"`
	Disposition *Disposition `json:"disposition"`
}

// DispositionStats counts dispositions overall, in a year, in the current
// month and today.
type DispositionStats struct {
	Year    int   `json:"year"`
	Total   int64 `json:"total"`
	Yearly  int64 `json:"yearly"`
	Monthly int64 `json:"monthly"`
	Today   int64 `json:"today"`
}

// CreateDisposition routes an incoming letter. A letter takes at most one
// disposition. Without an explicit number the next disposition number is
// allocated; an explicit number that is already used is a conflict.
func (s *Service) CreateDisposition(ctx context.Context, caller numbering.Caller, input DispositionInput) (Disposition, error) {
	letterID := strings.TrimSpace(input.LetterInID)
	if letterID == "" {
		return Disposition{}, serviceerror.Validation(opCreateDisposition, "missing_letter_id", errMissingLetterID)
	}
	if input.Date == nil || input.Date.IsZero() {
		return Disposition{}, serviceerror.Validation(opCreateDisposition, "missing_date", errMissingDispoDate)
	}
	if input.Content == nil {
		return Disposition{}, serviceerror.Validation(opCreateDisposition, "missing_content", errMissingContent)
	}
	recipients, content, err := validateDisposition(input.Recipients, *input.Content)
	if err != nil {
		return Disposition{}, serviceerror.Validation(opCreateDisposition, "invalid_disposition", err)
	}
	if input.Number != nil && *input.Number < 1 {
		return Disposition{}, serviceerror.Validation(opCreateDisposition, "invalid_number", errInvalidDispoNumber)
	}

	id, err := s.newID(opCreateDisposition)
	if err != nil {
		return Disposition{}, err
	}
	now := s.clock().UTC()
	disposition := Disposition{
		ID:           id,
		Date:         input.Date.UTC(),
		Recipients:   recipients,
		Content:      content,
		LetterInID:   letterID,
		UserID:       optional(caller.UserID),
		UpdateUserID: optional(caller.UserID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findLetter(tx, opCreateDisposition, letterID, true); err != nil {
			return err
		}
		var existing int64
		if err := tx.Model(&Disposition{}).Where(queryLetterInID, letterID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return serviceerror.Conflict(opCreateDisposition, "letter_already_disposed", errLetterAlreadyDisposed)
		}

		if input.Number != nil {
			disposition.Number = *input.Number
			if err := s.ensureDispositionNumberFree(tx, opCreateDisposition, disposition.Number, ""); err != nil {
				return err
			}
			if err := s.allocator.Observe(tx, DispositionScope(), disposition.Number); err != nil {
				return err
			}
		} else {
			block, err := s.allocator.Allocate(tx, DispositionScope(), 1)
			if err != nil {
				return err
			}
			disposition.Number = block.First
		}

		if err := tx.Create(&disposition).Error; err != nil {
			return err
		}
		return tx.Model(&LetterIn{}).Where("id = ?", letterID).Update("disposed", true).Error
	})
	if txErr != nil {
		return Disposition{}, s.classifyWriteError(opCreateDisposition, "number_exists", txErr)
	}
	return disposition, nil
}

// ListDispositions returns one page of dispositions, newest first.
func (s *Service) ListDispositions(ctx context.Context, filter DispositionFilter) (DispositionPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	query := s.db.WithContext(ctx).Model(&Disposition{})
	if letterID := strings.TrimSpace(filter.LetterInID); letterID != "" {
		query = query.Where(queryLetterInID, letterID)
	}
	if filter.Year > 0 {
		start, end := s.yearBounds(filter.Year)
		query = query.Where("tgl_dispo >= ? AND tgl_dispo < ?", start, end)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		s.logError(opListDispositions, "count_failed", err)
		return DispositionPage{}, serviceerror.Internal(opListDispositions, "count_failed", err)
	}
	items := make([]Disposition, 0)
	if err := query.Session(&gorm.Session{}).Order("created_at DESC").Order("no_dispo DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&items).Error; err != nil {
		s.logError(opListDispositions, "query_failed", err)
		return DispositionPage{}, serviceerror.Internal(opListDispositions, "query_failed", err)
	}
	return DispositionPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// GetDisposition returns one disposition.
func (s *Service) GetDisposition(ctx context.Context, id string) (Disposition, error) {
	return s.findDisposition(s.db.WithContext(ctx), opGetDisposition, id, false)
}

// UpdateDisposition edits a disposition. Moving it to a number that is
// already used is a conflict.
func (s *Service) UpdateDisposition(ctx context.Context, caller numbering.Caller, id string, input DispositionInput) (Disposition, error) {
	if input.Number != nil && *input.Number < 1 {
		return Disposition{}, serviceerror.Validation(opUpdateDisposition, "invalid_number", errInvalidDispoNumber)
	}

	var disposition Disposition
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.findDisposition(tx, opUpdateDisposition, id, true)
		if err != nil {
			return err
		}
		disposition = found

		recipients := disposition.Recipients
		if input.Recipients != nil {
			recipients = input.Recipients
		}
		content := disposition.Content
		if input.Content != nil {
			content = *input.Content
		}
		recipients, content, err = validateDisposition(recipients, content)
		if err != nil {
			return serviceerror.Validation(opUpdateDisposition, "invalid_disposition", err)
		}
		disposition.Recipients = recipients
		disposition.Content = content

		if input.Date != nil && !input.Date.IsZero() {
			disposition.Date = input.Date.UTC()
		}
		if input.Number != nil && *input.Number != disposition.Number {
			if err := s.ensureDispositionNumberFree(tx, opUpdateDisposition, *input.Number, id); err != nil {
				return err
			}
			if err := s.allocator.Observe(tx, DispositionScope(), *input.Number); err != nil {
				return err
			}
			disposition.Number = *input.Number
		}
		disposition.UpdateUserID = optional(caller.UserID)
		disposition.UpdatedAt = s.clock().UTC()
		return tx.Save(&disposition).Error
	})
	if txErr != nil {
		return Disposition{}, s.classifyWriteError(opUpdateDisposition, "number_exists", txErr)
	}
	return disposition, nil
}

// DeleteDisposition removes a disposition and clears the disposed flag of
// its letter.
func (s *Service) DeleteDisposition(ctx context.Context, id string) (Disposition, error) {
	var disposition Disposition
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.findDisposition(tx, opDeleteDisposition, id, true)
		if err != nil {
			return err
		}
		disposition = found
		if err := tx.Where("id = ?", id).Delete(&Disposition{}).Error; err != nil {
			return err
		}
		return tx.Model(&LetterIn{}).Where("id = ?", disposition.LetterInID).Update("disposed", false).Error
	})
	if txErr != nil {
		return Disposition{}, s.classifyWriteError(opDeleteDisposition, "delete_conflict", txErr)
	}
	return disposition, nil
}

// PeekNextDisposition returns the number the next disposition would receive.
func (s *Service) PeekNextDisposition(ctx context.Context) (int64, error) {
	next, err := s.allocator.Peek(s.db.WithContext(ctx), DispositionScope())
	if err != nil {
		s.logError(opPeekDisposition, "peek_failed", err)
		return 0, err
	}
	return next, nil
}

// LetterStatus reports whether letterID already has a disposition.
func (s *Service) LetterStatus(ctx context.Context, letterID string) (DispositionStatus, error) {
	letterID = strings.TrimSpace(letterID)
	if letterID == "" {
		return DispositionStatus{}, serviceerror.Validation(opLetterStatus, "missing_letter_id", errMissingLetterID)
	}
	status := DispositionStatus{LetterInID: letterID}
	var disposition Disposition
	err := s.db.WithContext(ctx).Where(queryLetterInID, letterID).Take(&disposition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status, nil
	}
	if err != nil {
		s.logError(opLetterStatus, "query_failed", err, zap.String("letter_in_id", letterID))
		return DispositionStatus{}, serviceerror.Internal(opLetterStatus, "query_failed", err)
	}
	status.Disposed = true
	status.Disposition = &disposition
	return status, nil
}

// Stats counts dispositions by period. A zero year means the current year.
func (s *Service) Stats(ctx context.Context, year int) (DispositionStats, error) {
	now := s.clock()
	if year <= 0 {
		year = s.policy.Year(now)
	}
	stats := DispositionStats{Year: year}
	db := s.db.WithContext(ctx).Model(&Disposition{})

	yearStart, yearEnd := s.yearBounds(year)
	today := s.policy.StartOfDay(now)
	monthStart := today.AddDate(0, 0, 1-today.Day())

	counts := []struct {
		target *int64
		where  string
		args   []any
	}{
		{&stats.Total, "", nil},
		{&stats.Yearly, "tgl_dispo >= ? AND tgl_dispo < ?", []any{yearStart, yearEnd}},
		{&stats.Monthly, "tgl_dispo >= ?", []any{monthStart.UTC()}},
		{&stats.Today, "tgl_dispo >= ?", []any{today.UTC()}},
	}
	for _, count := range counts {
		query := db.Session(&gorm.Session{})
		if count.where != "" {
			query = query.Where(count.where, count.args...)
		}
		if err := query.Count(count.target).Error; err != nil {
			s.logError(opStats, "count_failed", err)
			return DispositionStats{}, serviceerror.Internal(opStats, "count_failed", err)
		}
	}
	return stats, nil
}

func (s *Service) yearBounds(year int) (time.Time, time.Time) {
	location := s.policy.Location
	if location == nil {
		location = numbering.LoadLocation("")
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, location)
	return start.UTC(), start.AddDate(1, 0, 0).UTC()
}

func (s *Service) ensureDispositionNumberFree(tx *gorm.DB, operation string, number int64, exceptID string) error {
	query := tx.Model(&Disposition{}).Where("no_dispo = ?", number)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var used int64
	if err := query.Count(&used).Error; err != nil {
		return err
	}
	if used > 0 {
		return serviceerror.Conflict(operation, "number_exists", errDispositionNumberUsed)
	}
	return nil
}

func (s *Service) findDisposition(db *gorm.DB, operation, id string, lock bool) (Disposition, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var disposition Disposition
	err := query.Where("id = ?", id).Take(&disposition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Disposition{}, serviceerror.NotFound(operation, "not_found", errDispositionNotFound)
	}
	if err != nil {
		s.logError(operation, "disposition_select_failed", err, zap.String("disposition_id", id))
		return Disposition{}, serviceerror.Internal(operation, "disposition_select_failed", err)
	}
	return disposition, nil
}

func validateDisposition(recipients []string, content string) ([]string, string, error) {
	cleaned := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, "", errMissingRecipients
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, "", errMissingContent
	}
	if utf8.RuneCountInString(content) > MaxDispositionContent {
		return nil, "", errContentTooLong
	}
	return cleaned, content, nil
}
