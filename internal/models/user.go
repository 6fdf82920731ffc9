package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a document owner. Signers are never users: they hold only a
// bearer token tied to an invitation.
type User struct {
	ID           string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Email        string     `gorm:"unique;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	DisplayName  string     `json:"displayName"`
	Role         string     `gorm:"default:'user'" json:"role"`
	IsActive     bool       `gorm:"default:true" json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
