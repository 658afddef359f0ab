// Package incoming manages incoming letters, their agenda companions and the
// dispositions that route them inside the department.
package incoming

import (
	"fmt"
	"strings"
	"time"

	"github.com/suratdinas/backend/internal/numbering"
)

const (
	tableLetterIns    = "letter_ins"
	tableAgendas      = "agendas"
	tableDispositions = "dispositions"

	agendaScopePrefix   = "letter_in:"
	dispositionScopeKey = "disposition"

	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
	longTimeLayout = "15:04:05"

	// MaxDispositionContent bounds the length of a disposition's instruction.
	MaxDispositionContent = 500
)

// AgendaScope is the agenda number sequence of one calendar year.
func AgendaScope(year int) numbering.Scope {
	return numbering.Scope{
		Key:    fmt.Sprintf("%s%d", agendaScopePrefix, year),
		Table:  tableLetterIns,
		Column: "no_agenda",
		Filter: "tahun = ?",
		Args:   []any{year},
	}
}

// DispositionScope is the global disposition number sequence.
func DispositionScope() numbering.Scope {
	return numbering.Scope{
		Key:    dispositionScopeKey,
		Table:  tableDispositions,
		Column: "no_dispo",
	}
}

// LetterIn is a received letter registered in the agenda book.
type LetterIn struct {
	ID               string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	AgendaNumber     int64      `gorm:"column:no_agenda;not null;uniqueIndex:idx_letter_ins_agenda_year,priority:1" json:"noAgenda"`
	Year             int        `gorm:"column:tahun;not null;uniqueIndex:idx_letter_ins_agenda_year,priority:2" json:"tahun"`
	LetterNumber     *string    `gorm:"column:no_surat;size:255" json:"noSurat"`
	Sender           *string    `gorm:"column:surat_dari;size:255" json:"suratDari"`
	Subject          *string    `gorm:"column:perihal;size:1024" json:"perihal"`
	LetterDate       *time.Time `gorm:"column:tgl_surat" json:"tglSurat"`
	ReceivedDate     *time.Time `gorm:"column:diterima_tgl" json:"diterimaTgl"`
	Direct           *bool      `gorm:"column:langsung_ke" json:"langsungKe"`
	AddressedTo      *string    `gorm:"column:ditujukan_ke;size:255" json:"ditujukanKe"`
	HasAgenda        bool       `gorm:"column:agenda;not null;default:false" json:"agenda"`
	Disposed         bool       `gorm:"column:disposed;not null;default:false" json:"disposed"`
	Filename         *string    `gorm:"column:filename;size:512" json:"filename"`
	FilePath         *string    `gorm:"column:file_path;size:512" json:"-"`
	ClassificationID *string    `gorm:"column:classification_id;size:64" json:"classificationId"`
	LetterTypeID     *string    `gorm:"column:letter_type_id;size:64" json:"letterTypeId"`
	UserID           *string    `gorm:"column:user_id;size:64" json:"userId"`
	UpdateUserID     *string    `gorm:"column:update_user_id;size:64" json:"updateUserId"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	Agenda           *Agenda    `gorm:"-" json:"agenda_detail,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (LetterIn) TableName() string {
	return tableLetterIns
}

// AgendaLabel renders the agenda number the way it is written in the book.
func (l LetterIn) AgendaLabel() string {
	return AgendaNumber{Year: l.Year, Number: l.AgendaNumber}.String()
}

func (l LetterIn) hasAttachment() bool {
	return l.FilePath != nil && *l.FilePath != ""
}

// Agenda is the scheduled event an incoming letter invites to.
type Agenda struct {
	ID         string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	LetterInID string    `gorm:"column:letter_in_id;size:64;not null;uniqueIndex" json:"letterIn_id"`
	StartDate  string    `gorm:"column:tgl_mulai;size:10;not null;index" json:"tglMulai"`
	EndDate    string    `gorm:"column:tgl_selesai;size:10;not null" json:"tglSelesai"`
	StartTime  string    `gorm:"column:jam_mulai;size:8;not null" json:"jamMulai"`
	EndTime    string    `gorm:"column:jam_selesai;size:8;not null" json:"jamSelesai"`
	Place      string    `gorm:"column:tempat;size:255;not null" json:"tempat"`
	Event      string    `gorm:"column:acara;size:255;not null" json:"acara"`
	Notes      *string   `gorm:"column:catatan;size:2048" json:"catatan"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Agenda) TableName() string {
	return tableAgendas
}

// Disposition routes an incoming letter to its handlers.
type Disposition struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Number       int64     `gorm:"column:no_dispo;not null;uniqueIndex" json:"noDispo"`
	Date         time.Time `gorm:"column:tgl_dispo;not null;index" json:"tglDispo"`
	Recipients   []string  `gorm:"column:dispo_ke;type:text;serializer:json" json:"dispoKe"`
	Content      string    `gorm:"column:isi_dispo;size:500;not null" json:"isiDispo"`
	LetterInID   string    `gorm:"column:letter_in_id;size:64;not null;uniqueIndex" json:"letterIn_id"`
	UserID       *string   `gorm:"column:user_id;size:64" json:"userId"`
	UpdateUserID *string   `gorm:"column:update_user_id;size:64" json:"updateUserId"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Disposition) TableName() string {
	return tableDispositions
}

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&LetterIn{}, &Agenda{}, &Disposition{}}
}

// AgendaNumber is a year-scoped agenda number.
type AgendaNumber struct {
	Year   int   `json:"tahun"`
	Number int64 `json:"noAgenda"`
}

// String formats the number as "{year}/{number}".
func (a AgendaNumber) String() string {
	return fmt.Sprintf("%d/%d", a.Year, a.Number)
}

// AgendaInput carries the companion agenda of a letter. Dates use YYYY-MM-DD
// and times HH:MM or HH:MM:SS.
type AgendaInput struct {
	StartDate string
	EndDate   string
	StartTime string
	EndTime   string
	Place     string
	Event     string
	Notes     *string
}

// validate checks the agenda before anything is written.
func (a AgendaInput) validate() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"tglMulai", a.StartDate},
		{"tglSelesai", a.EndDate},
		{"jamMulai", a.StartTime},
		{"jamSelesai", a.EndTime},
		{"tempat", a.Place},
		{"acara", a.Event},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("agenda fields are required: %s", strings.Join(missing, ", "))
	}

	startDate, err := time.Parse(dateLayout, strings.TrimSpace(a.StartDate))
	if err != nil {
		return fmt.Errorf("invalid start date %q", a.StartDate)
	}
	endDate, err := time.Parse(dateLayout, strings.TrimSpace(a.EndDate))
	if err != nil {
		return fmt.Errorf("invalid end date %q", a.EndDate)
	}
	startTime, err := parseClock(a.StartTime)
	if err != nil {
		return err
	}
	endTime, err := parseClock(a.EndTime)
	if err != nil {
		return err
	}
	if endDate.Before(startDate) {
		return fmt.Errorf("end date must not be before start date")
	}
	if endDate.Equal(startDate) && endTime < startTime {
		return fmt.Errorf("end time must not be before start time on the same day")
	}
	return nil
}

func (a AgendaInput) applyTo(agenda *Agenda) {
	agenda.StartDate = strings.TrimSpace(a.StartDate)
	agenda.EndDate = strings.TrimSpace(a.EndDate)
	agenda.StartTime = strings.TrimSpace(a.StartTime)
	agenda.EndTime = strings.TrimSpace(a.EndTime)
	agenda.Place = strings.TrimSpace(a.Place)
	agenda.Event = strings.TrimSpace(a.Event)
	agenda.Notes = a.Notes
}

func parseClock(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range []string{timeLayout, longTimeLayout} {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return time.Duration(parsed.Hour())*time.Hour +
				time.Duration(parsed.Minute())*time.Minute +
				time.Duration(parsed.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", value)
}

func assign(target **string, value *string) {
	if value == nil {
		return
	}
	copied := *value
	*target = &copied
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
