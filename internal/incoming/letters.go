package incoming

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/serviceerror"
	"github.com/suratdinas/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opCreateLetter     = "incoming.create_letter"
	opListLetters      = "incoming.list_letters"
	opGetLetter        = "incoming.get_letter"
	opOpenAttachment   = "incoming.open_attachment"
	opUpdateLetter     = "incoming.update_letter"
	opDeleteLetter     = "incoming.delete_letter"
	opDeleteAllLetters = "incoming.delete_all_letters"
	opPeekAgenda       = "incoming.peek_next_agenda"
	opListAgendas      = "incoming.list_agendas"
	opGetAgenda        = "incoming.get_agenda"

	queryLetterInID = "letter_in_id = ?"
)

var (
	errLetterNotFound       = errors.New("incoming letter not found")
	errAgendaNotFound       = errors.New("agenda not found")
	errAgendaNumberExists   = errors.New("agenda number is already used in that year")
	errInvalidAgendaNumber  = errors.New("agenda number and year must be positive")
	errNoAttachment         = errors.New("incoming letter has no attachment")
	errAgendaNumberReadOnly = errors.New("agenda number and year cannot be changed")
)

// LetterInput describes an incoming letter. Nil fields are left unchanged on
// update. AgendaNumber and Year are honoured on create only.
type LetterInput struct {
	AgendaNumber     *int64
	Year             *int
	LetterNumber     *string
	Sender           *string
	Subject          *string
	LetterDate       *time.Time
	ReceivedDate     *time.Time
	Direct           *bool
	AddressedTo      *string
	ClassificationID *string
	LetterTypeID     *string
	Agenda           *bool
	AgendaDetails    AgendaInput
	Attachment       *storage.Upload
}

func (in LetterInput) applyTo(letter *LetterIn) {
	assign(&letter.LetterNumber, in.LetterNumber)
	assign(&letter.Sender, in.Sender)
	assign(&letter.Subject, in.Subject)
	assign(&letter.AddressedTo, in.AddressedTo)
	assign(&letter.ClassificationID, in.ClassificationID)
	assign(&letter.LetterTypeID, in.LetterTypeID)
	if in.LetterDate != nil {
		value := in.LetterDate.UTC()
		letter.LetterDate = &value
	}
	if in.ReceivedDate != nil {
		value := in.ReceivedDate.UTC()
		letter.ReceivedDate = &value
	}
	if in.Direct != nil {
		value := *in.Direct
		letter.Direct = &value
	}
}

func (in LetterInput) wantsAgenda() bool {
	return in.Agenda != nil && *in.Agenda
}

// LetterFilter narrows ListLetters. Zero values do not filter.
type LetterFilter struct {
	Year     int
	Subject  string
	Sender   string
	Disposed *bool
	Agenda   *bool
}

// AgendaFilter narrows ListAgendas by start date, inclusive, YYYY-MM-DD.
type AgendaFilter struct {
	From string
	To   string
}

// CreateLetter registers an incoming letter. Without an explicit agenda
// number the letter is numbered in the current year's sequence; an explicit
// (number, year) pair that is already used is a conflict. When the agenda
// flag is set the companion agenda is written in the same transaction.
func (s *Service) CreateLetter(ctx context.Context, caller numbering.Caller, input LetterInput) (LetterIn, error) {
	if input.wantsAgenda() {
		if err := input.AgendaDetails.validate(); err != nil {
			return LetterIn{}, serviceerror.Validation(opCreateLetter, "invalid_agenda", err)
		}
	}
	if (input.AgendaNumber != nil && *input.AgendaNumber < 1) || (input.Year != nil && *input.Year < 1) {
		return LetterIn{}, serviceerror.Validation(opCreateLetter, "invalid_agenda_number", errInvalidAgendaNumber)
	}

	id, err := s.newID(opCreateLetter)
	if err != nil {
		return LetterIn{}, err
	}
	now := s.clock().UTC()
	letter := LetterIn{
		ID:           id,
		Year:         s.policy.Year(now),
		HasAgenda:    input.wantsAgenda(),
		UserID:       optional(caller.UserID),
		UpdateUserID: optional(caller.UserID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	input.applyTo(&letter)

	var agenda *Agenda
	if letter.HasAgenda {
		agendaID, err := s.newID(opCreateLetter)
		if err != nil {
			return LetterIn{}, err
		}
		agenda = &Agenda{ID: agendaID, LetterInID: id, CreatedAt: now, UpdatedAt: now}
		input.AgendaDetails.applyTo(agenda)
	}

	storedKey, err := s.saveAttachment(opCreateLetter, input.Attachment)
	if err != nil {
		return LetterIn{}, err
	}
	if storedKey != "" {
		name := input.Attachment.Name
		letter.Filename = &name
		key := storedKey
		letter.FilePath = &key
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.AgendaNumber != nil {
			if input.Year != nil {
				letter.Year = *input.Year
			}
			letter.AgendaNumber = *input.AgendaNumber
			var used int64
			if err := tx.Model(&LetterIn{}).
				Where("no_agenda = ? AND tahun = ?", letter.AgendaNumber, letter.Year).
				Count(&used).Error; err != nil {
				return err
			}
			if used > 0 {
				return serviceerror.Conflict(opCreateLetter, "agenda_number_exists", errAgendaNumberExists)
			}
			if err := s.allocator.Observe(tx, AgendaScope(letter.Year), letter.AgendaNumber); err != nil {
				return err
			}
		} else {
			block, err := s.allocator.Allocate(tx, AgendaScope(letter.Year), 1)
			if err != nil {
				return err
			}
			letter.AgendaNumber = block.First
		}

		if err := tx.Create(&letter).Error; err != nil {
			return err
		}
		if agenda != nil {
			return tx.Create(agenda).Error
		}
		return nil
	})
	if txErr != nil {
		s.discardAttachment(storedKey)
		return LetterIn{}, s.classifyWriteError(opCreateLetter, "agenda_number_exists", txErr)
	}
	letter.Agenda = agenda
	return letter, nil
}

// ListLetters returns incoming letters ordered by year and agenda number.
func (s *Service) ListLetters(ctx context.Context, filter LetterFilter) ([]LetterIn, error) {
	query := s.db.WithContext(ctx).Model(&LetterIn{})
	if filter.Year > 0 {
		query = query.Where("tahun = ?", filter.Year)
	}
	if subject := strings.TrimSpace(filter.Subject); subject != "" {
		query = query.Where("LOWER(perihal) LIKE ?", "%"+strings.ToLower(subject)+"%")
	}
	if sender := strings.TrimSpace(filter.Sender); sender != "" {
		query = query.Where("LOWER(surat_dari) LIKE ?", "%"+strings.ToLower(sender)+"%")
	}
	if filter.Disposed != nil {
		query = query.Where("disposed = ?", *filter.Disposed)
	}
	if filter.Agenda != nil {
		query = query.Where("agenda = ?", *filter.Agenda)
	}

	letters := make([]LetterIn, 0)
	if err := query.Order("tahun ASC").Order("no_agenda ASC").Find(&letters).Error; err != nil {
		s.logError(opListLetters, "query_failed", err)
		return nil, serviceerror.Internal(opListLetters, "query_failed", err)
	}
	return letters, nil
}

// GetLetter returns one incoming letter with its agenda, if any.
func (s *Service) GetLetter(ctx context.Context, id string) (LetterIn, error) {
	db := s.db.WithContext(ctx)
	letter, err := s.findLetter(db, opGetLetter, id, false)
	if err != nil {
		return LetterIn{}, err
	}
	agenda, err := s.findAgendaOf(db, opGetLetter, id)
	if err != nil {
		return LetterIn{}, err
	}
	letter.Agenda = agenda
	return letter, nil
}

// OpenLetterAttachment opens the scanned letter for download.
func (s *Service) OpenLetterAttachment(ctx context.Context, id string) (storage.Download, error) {
	letter, err := s.findLetter(s.db.WithContext(ctx), opOpenAttachment, id, false)
	if err != nil {
		return storage.Download{}, err
	}
	if !letter.hasAttachment() {
		return storage.Download{}, serviceerror.NotFound(opOpenAttachment, "no_attachment", errNoAttachment)
	}
	content, err := s.store.Open(*letter.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Download{}, serviceerror.NotFound(opOpenAttachment, "file_missing", err)
	}
	if err != nil {
		s.logError(opOpenAttachment, "open_failed", err, zap.String("letter_in_id", id))
		return storage.Download{}, serviceerror.Internal(opOpenAttachment, "open_failed", err)
	}
	filename := *letter.FilePath
	if letter.Filename != nil && *letter.Filename != "" {
		filename = *letter.Filename
	}
	return storage.Download{Filename: filename, Content: content}, nil
}

// UpdateLetter edits an incoming letter. The agenda number and year never
// change. A set agenda flag creates or rewrites the companion agenda and a
// cleared one deletes it, in the same transaction as the letter.
func (s *Service) UpdateLetter(ctx context.Context, caller numbering.Caller, id string, input LetterInput) (LetterIn, error) {
	if input.AgendaNumber != nil || input.Year != nil {
		return LetterIn{}, serviceerror.Validation(opUpdateLetter, "agenda_number_read_only", errAgendaNumberReadOnly)
	}
	if input.wantsAgenda() {
		if err := input.AgendaDetails.validate(); err != nil {
			return LetterIn{}, serviceerror.Validation(opUpdateLetter, "invalid_agenda", err)
		}
	}

	storedKey, err := s.saveAttachment(opUpdateLetter, input.Attachment)
	if err != nil {
		return LetterIn{}, err
	}

	var letter LetterIn
	var agenda *Agenda
	var previousKey string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.findLetter(tx, opUpdateLetter, id, true)
		if err != nil {
			return err
		}
		letter = found
		now := s.clock().UTC()

		input.applyTo(&letter)
		letter.UpdateUserID = optional(caller.UserID)
		letter.UpdatedAt = now

		if input.Agenda != nil {
			letter.HasAgenda = *input.Agenda
			if letter.HasAgenda {
				agenda, err = s.upsertAgenda(tx, id, input.AgendaDetails, now)
				if err != nil {
					return err
				}
			} else if err := tx.Where(queryLetterInID, id).Delete(&Agenda{}).Error; err != nil {
				return err
			}
		}

		if storedKey != "" {
			if letter.hasAttachment() {
				previousKey = *letter.FilePath
			}
			name := input.Attachment.Name
			letter.Filename = &name
			key := storedKey
			letter.FilePath = &key
		}
		return tx.Save(&letter).Error
	})
	if txErr != nil {
		s.discardAttachment(storedKey)
		return LetterIn{}, s.classifyWriteError(opUpdateLetter, "agenda_exists", txErr)
	}
	s.discardAttachment(previousKey)

	if agenda == nil && letter.HasAgenda {
		agenda, err = s.findAgendaOf(s.db.WithContext(ctx), opUpdateLetter, id)
		if err != nil {
			return LetterIn{}, err
		}
	}
	letter.Agenda = agenda
	return letter, nil
}

// DeleteLetter removes an incoming letter together with its agenda and
// disposition.
func (s *Service) DeleteLetter(ctx context.Context, id string) error {
	var previousKey string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		letter, err := s.findLetter(tx, opDeleteLetter, id, true)
		if err != nil {
			return err
		}
		if letter.hasAttachment() {
			previousKey = *letter.FilePath
		}
		if err := tx.Where(queryLetterInID, id).Delete(&Agenda{}).Error; err != nil {
			return err
		}
		if err := tx.Where(queryLetterInID, id).Delete(&Disposition{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&LetterIn{}).Error
	})
	if txErr != nil {
		return s.classifyWriteError(opDeleteLetter, "delete_conflict", txErr)
	}
	s.discardAttachment(previousKey)
	return nil
}

// DeleteAllLetters removes every incoming letter, agenda and disposition.
// With truncate the agenda and disposition numbering restarts at 1; without
// it numbering continues where it stopped. Only administrators may do this.
func (s *Service) DeleteAllLetters(ctx context.Context, caller numbering.Caller, truncate bool) (int64, error) {
	if !caller.IsAdmin {
		return 0, serviceerror.Permission(opDeleteAllLetters, "admin_only", errAdminOnly)
	}
	var removed int64
	var keys []string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&LetterIn{}).
			Where("file_path IS NOT NULL AND file_path <> ''").
			Pluck("file_path", &keys).Error; err != nil {
			return err
		}
		global := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := global.Delete(&Agenda{}).Error; err != nil {
			return err
		}
		if err := global.Delete(&Disposition{}).Error; err != nil {
			return err
		}
		result := global.Delete(&LetterIn{})
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected
		if !truncate {
			return nil
		}
		if err := s.allocator.ResetPrefix(tx, agendaScopePrefix); err != nil {
			return err
		}
		return s.allocator.Reset(tx, dispositionScopeKey)
	})
	if txErr != nil {
		return 0, s.classifyWriteError(opDeleteAllLetters, "delete_conflict", txErr)
	}
	for _, key := range keys {
		s.discardAttachment(key)
	}
	return removed, nil
}

// PeekNextAgenda returns the agenda number the next letter of the current
// year would receive.
func (s *Service) PeekNextAgenda(ctx context.Context) (AgendaNumber, error) {
	year := s.policy.Year(s.clock())
	next, err := s.allocator.Peek(s.db.WithContext(ctx), AgendaScope(year))
	if err != nil {
		s.logError(opPeekAgenda, "peek_failed", err)
		return AgendaNumber{}, err
	}
	return AgendaNumber{Year: year, Number: next}, nil
}

// ListAgendas returns agendas ordered by start date and time.
func (s *Service) ListAgendas(ctx context.Context, filter AgendaFilter) ([]Agenda, error) {
	query := s.db.WithContext(ctx).Model(&Agenda{})
	if from := strings.TrimSpace(filter.From); from != "" {
		query = query.Where("tgl_mulai >= ?", from)
	}
	if to := strings.TrimSpace(filter.To); to != "" {
		query = query.Where("tgl_mulai <= ?", to)
	}
	agendas := make([]Agenda, 0)
	if err := query.Order("tgl_mulai ASC").Order("jam_mulai ASC").Find(&agendas).Error; err != nil {
		s.logError(opListAgendas, "query_failed", err)
		return nil, serviceerror.Internal(opListAgendas, "query_failed", err)
	}
	return agendas, nil
}

// GetAgenda returns one agenda.
func (s *Service) GetAgenda(ctx context.Context, id string) (Agenda, error) {
	var agenda Agenda
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&agenda).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Agenda{}, serviceerror.NotFound(opGetAgenda, "not_found", errAgendaNotFound)
	}
	if err != nil {
		s.logError(opGetAgenda, "agenda_select_failed", err, zap.String("agenda_id", id))
		return Agenda{}, serviceerror.Internal(opGetAgenda, "agenda_select_failed", err)
	}
	return agenda, nil
}

func (s *Service) upsertAgenda(tx *gorm.DB, letterID string, details AgendaInput, now time.Time) (*Agenda, error) {
	var agenda Agenda
	err := tx.Where(queryLetterInID, letterID).Take(&agenda).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		id, err := s.newID(opUpdateLetter)
		if err != nil {
			return nil, err
		}
		agenda = Agenda{ID: id, LetterInID: letterID, CreatedAt: now}
		details.applyTo(&agenda)
		agenda.UpdatedAt = now
		if err := tx.Create(&agenda).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		details.applyTo(&agenda)
		agenda.UpdatedAt = now
		if err := tx.Save(&agenda).Error; err != nil {
			return nil, err
		}
	}
	return &agenda, nil
}

func (s *Service) findLetter(db *gorm.DB, operation, id string, lock bool) (LetterIn, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var letter LetterIn
	err := query.Where("id = ?", id).Take(&letter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LetterIn{}, serviceerror.NotFound(operation, "not_found", errLetterNotFound)
	}
	if err != nil {
		s.logError(operation, "letter_select_failed", err, zap.String("letter_in_id", id))
		return LetterIn{}, serviceerror.Internal(operation, "letter_select_failed", err)
	}
	return letter, nil
}

func (s *Service) findAgendaOf(db *gorm.DB, operation, letterID string) (*Agenda, error) {
	var agenda Agenda
	err := db.Where(queryLetterInID, letterID).Take(&agenda).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(operation, "agenda_select_failed", err, zap.String("letter_in_id", letterID))
		return nil, serviceerror.Internal(operation, "agenda_select_failed", err)
	}
	return &agenda, nil
}
