// Package reference manages the lookup tables documents point at.
package reference

import "time"

// Entry is the common shape of every lookup row.
type Entry struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name      string    `gorm:"column:name;size:512;not null" json:"name"`
	Active    *bool     `gorm:"column:active" json:"active,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

type Classification struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:512;not null;default:'-'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Classification) TableName() string { return "classifications" }

type Department struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:190;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Department) TableName() string { return "departments" }

type RetentionPeriod struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:512;not null"`
	Active    bool   `gorm:"column:active;not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RetentionPeriod) TableName() string { return "retention_periods" }

type StorageLocation struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:512;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StorageLocation) TableName() string { return "storage_locations" }

type Access struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:512;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Access) TableName() string { return "accesses" }

type JRADescription struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:512;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (JRADescription) TableName() string { return "jra_descriptions" }

type Level struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:512;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Level) TableName() string { return "levels" }

type LetterType struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	Name      string `gorm:"column:name;size:190;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LetterType) TableName() string { return "letter_types" }

// Models lists every lookup table for schema migration.
func Models() []any {
	return []any{
		&Classification{},
		&Department{},
		&RetentionPeriod{},
		&StorageLocation{},
		&Access{},
		&JRADescription{},
		&Level{},
		&LetterType{},
	}
}
