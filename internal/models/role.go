package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleParent  = "parent"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

type Role struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	Name      string         `gorm:"unique;not null" json:"name"`
	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Capabilities is what a role may do, independent of how the role is named.
type Capabilities struct {
	CanPay     bool `json:"can_pay"`
	CanManage  bool `json:"can_manage"`
	CanViewAll bool `json:"can_view_all"`
}

func CapabilitiesFor(roleName string) Capabilities {
	switch roleName {
	case RoleParent, RoleStudent:
		return Capabilities{CanPay: true}
	case RoleAdmin:
		return Capabilities{CanManage: true, CanViewAll: true}
	default:
		return Capabilities{}
	}
}

func (r Role) Capabilities() Capabilities {
	return CapabilitiesFor(r.Name)
}
