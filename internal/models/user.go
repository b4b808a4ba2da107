package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Email       string         `gorm:"unique;not null" json:"email"`
	Password    string         `gorm:"not null" json:"-"`
	FullName    string         `gorm:"not null" json:"full_name"`
	PhoneNumber string         `json:"phone,omitempty"`
	RoleID      uuid.UUID      `json:"-"`
	Role        Role           `json:"role"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return
}

// CanSee reports whether the user may view the given student's account.
func (user *User) CanSee(student *Student) bool {
	if user.Role.Capabilities().CanViewAll {
		return true
	}
	switch user.Role.Name {
	case RoleParent:
		return student.ParentID != nil && *student.ParentID == user.ID
	case RoleStudent:
		return student.UserID != nil && *student.UserID == user.ID
	}
	return false
}
