package numbering

import (
	"time"
)

const (
	// DefaultEditWindowDays bounds how long a reserved slot stays editable.
	DefaultEditWindowDays = 20
	// DefaultTimezone is the zone document dates and years are computed in.
	DefaultTimezone = "Asia/Jakarta"

	fallbackZoneName   = "WIB"
	fallbackZoneOffset = 7 * 60 * 60
)

// Caller is the authenticated identity numbering rules are evaluated for.
type Caller struct {
	UserID       string
	IsAdmin      bool
	DepartmentID string
}

// Policy holds the calendar and time-window rules shared by numbered documents.
type Policy struct {
	EditWindow time.Duration
	Location   *time.Location
}

// NewPolicy builds a Policy. A non-positive window falls back to the default
// and an unknown zone falls back to fixed UTC+7.
func NewPolicy(editWindowDays int, timezone string) Policy {
	if editWindowDays <= 0 {
		editWindowDays = DefaultEditWindowDays
	}
	return Policy{
		EditWindow: time.Duration(editWindowDays) * 24 * time.Hour,
		Location:   LoadLocation(timezone),
	}
}

// LoadLocation resolves name, falling back to fixed UTC+7 when the zone
// database is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(fallbackZoneName, fallbackZoneOffset)
	}
	return location
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.FixedZone(fallbackZoneName, fallbackZoneOffset)
	}
	return p.Location
}

// EditAllowed reports whether a slot reserved at lastReserved may still be
// edited at now. A slot with no reservation time is always editable.
func (p Policy) EditAllowed(lastReserved *time.Time, now time.Time) bool {
	if lastReserved == nil {
		return true
	}
	window := p.EditWindow
	if window <= 0 {
		window = DefaultEditWindowDays * 24 * time.Hour
	}
	return now.Sub(*lastReserved) <= window
}

// StartOfDay returns midnight of t's calendar day in the policy zone.
func (p Policy) StartOfDay(t time.Time) time.Time {
	local := t.In(p.location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// EndOfDay returns 23:59 of t's calendar day in the policy zone. Spare slots
// are dated there so they sort after documents filed earlier that day.
func (p Policy) EndOfDay(t time.Time) time.Time {
	return p.StartOfDay(t).Add(23*time.Hour + 59*time.Minute)
}

// IsYesterday reports whether date falls on the calendar day before now.
func (p Policy) IsYesterday(date, now time.Time) bool {
	return p.StartOfDay(date).Equal(p.StartOfDay(now).AddDate(0, 0, -1))
}

// Year returns the calendar year of t in the policy zone.
func (p Policy) Year(t time.Time) int {
	return t.In(p.location()).Year()
}
