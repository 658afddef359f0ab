package users

import (
	"strings"
	"time"
)

// User is an account that can sign in and own documents.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false" json:"isAdmin"`
	DepartmentID *string   `gorm:"column:department_id;size:64;index" json:"departmentId"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Department returns the department id or an empty string.
func (u User) Department() string {
	if u.DepartmentID == nil {
		return ""
	}
	return *u.DepartmentID
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
