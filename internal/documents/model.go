// Package documents manages outgoing letters and memos, the numbered documents
// whose slots can be pre-allocated, claimed, released and destroyed.
package documents

import (
	"fmt"
	"time"

	"github.com/suratdinas/backend/internal/numbering"
	"gorm.io/gorm"
)

const tableOutgoingDocuments = "outgoing_documents"

// Kind separates the independent sequences stored in outgoing_documents.
type Kind string

const (
	KindLetter Kind = "letter"
	KindMemo   Kind = "memo"
)

// ParseKind validates a stored or routed kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindLetter, KindMemo:
		return Kind(value), nil
	default:
		return "", fmt.Errorf("unknown document kind %q", value)
	}
}

// Scope is the numbering sequence of the kind.
func (k Kind) Scope() numbering.Scope {
	return numbering.Scope{
		Key:    string(k),
		Table:  tableOutgoingDocuments,
		Column: "number",
		Filter: "kind = ?",
		Args:   []any{string(k)},
	}
}

// Document is one numbered outgoing letter or memo slot.
type Document struct {
	ID                        string          `gorm:"column:id;primaryKey;size:64" json:"id"`
	Kind                      Kind            `gorm:"column:kind;size:16;not null;uniqueIndex:idx_outgoing_documents_kind_number,priority:1" json:"kind"`
	Number                    int64           `gorm:"column:number;not null;uniqueIndex:idx_outgoing_documents_kind_number,priority:2" json:"number"`
	Date                      time.Time       `gorm:"column:date;not null;index" json:"date"`
	State                     numbering.State `gorm:"column:reservation_state;size:16;not null;default:'';index" json:"state"`
	Reserved                  bool            `gorm:"-" json:"reserved"`
	LastReserved              *time.Time      `gorm:"column:last_reserved" json:"lastReserved"`
	Subject                   *string         `gorm:"column:subject;size:1024" json:"subject"`
	Recipient                 *string         `gorm:"column:recipient;size:1024" json:"to"`
	Filename                  *string         `gorm:"column:filename;size:512" json:"filename"`
	FilePath                  *string         `gorm:"column:file_path;size:512" json:"-"`
	UserID                    *string         `gorm:"column:user_id;size:64;index" json:"userId"`
	UpdateUserID              *string         `gorm:"column:update_user_id;size:64" json:"updateUserId"`
	DepartmentID              *string         `gorm:"column:department_id;size:64;index" json:"departmentId"`
	ClassificationID          *string         `gorm:"column:classification_id;size:64" json:"classificationId"`
	LevelID                   *string         `gorm:"column:level_id;size:64" json:"levelId"`
	AttachmentCount           *int            `gorm:"column:attachment_count" json:"attachmentCount"`
	Description               *string         `gorm:"column:description;size:2048" json:"description"`
	DocumentIndexName         *string         `gorm:"column:document_index_name;size:512" json:"documentIndexName"`
	ActiveRetentionPeriodID   *string         `gorm:"column:active_retention_period_id;size:64" json:"activeRetentionPeriodId"`
	InactiveRetentionPeriodID *string         `gorm:"column:inactive_retention_period_id;size:64" json:"inactiveRetentionPeriodId"`
	JRADescriptionID          *string         `gorm:"column:jra_description_id;size:64" json:"jraDescriptionId"`
	StorageLocationID         *string         `gorm:"column:storage_location_id;size:64" json:"storageLocationId"`
	AccessID                  *string         `gorm:"column:access_id;size:64" json:"accessId"`
	CreatedAt                 time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt                 time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return tableOutgoingDocuments
}

// AfterFind derives the reserved flag from the stored state.
func (d *Document) AfterFind(_ *gorm.DB) error {
	d.Reserved = d.State.Reserved()
	return nil
}

// HasAttachment reports whether a file is stored for the document.
func (d Document) HasAttachment() bool {
	return d.FilePath != nil && *d.FilePath != ""
}

func (d Document) visibleTo(caller numbering.Caller) bool {
	if caller.IsAdmin || d.DepartmentID == nil || *d.DepartmentID == "" {
		return true
	}
	return *d.DepartmentID == caller.DepartmentID
}

// release clears everything but the slot's identity, kind, number and date.
func (d *Document) release() {
	d.State = numbering.StateReleased
	d.Reserved = false
	d.LastReserved = nil
	d.Subject = nil
	d.Recipient = nil
	d.Filename = nil
	d.FilePath = nil
	d.UserID = nil
	d.UpdateUserID = nil
	d.DepartmentID = nil
	d.ClassificationID = nil
	d.LevelID = nil
	d.AttachmentCount = nil
	d.Description = nil
	d.DocumentIndexName = nil
	d.ActiveRetentionPeriodID = nil
	d.InactiveRetentionPeriodID = nil
	d.JRADescriptionID = nil
	d.StorageLocationID = nil
	d.AccessID = nil
}

// Content carries the descriptive fields of a document. Nil fields are left
// unchanged on update.
type Content struct {
	Subject                   *string
	To                        *string
	ClassificationID          *string
	LevelID                   *string
	AttachmentCount           *int
	Description               *string
	DocumentIndexName         *string
	ActiveRetentionPeriodID   *string
	InactiveRetentionPeriodID *string
	JRADescriptionID          *string
	StorageLocationID         *string
	AccessID                  *string
	DepartmentID              *string
}

func (c Content) applyTo(d *Document) {
	assign(&d.Subject, c.Subject)
	assign(&d.Recipient, c.To)
	assign(&d.ClassificationID, c.ClassificationID)
	assign(&d.LevelID, c.LevelID)
	assign(&d.Description, c.Description)
	assign(&d.DocumentIndexName, c.DocumentIndexName)
	assign(&d.ActiveRetentionPeriodID, c.ActiveRetentionPeriodID)
	assign(&d.InactiveRetentionPeriodID, c.InactiveRetentionPeriodID)
	assign(&d.JRADescriptionID, c.JRADescriptionID)
	assign(&d.StorageLocationID, c.StorageLocationID)
	assign(&d.AccessID, c.AccessID)
	if c.AttachmentCount != nil {
		count := *c.AttachmentCount
		if count < 0 {
			count = 0
		}
		d.AttachmentCount = &count
	}
}

func assign(target **string, value *string) {
	if value == nil {
		return
	}
	copied := *value
	*target = &copied
}

func present(value *string) bool {
	return value != nil && *value != ""
}
