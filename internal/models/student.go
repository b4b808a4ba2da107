package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StudentStatusPaid    = "paid"
	StudentStatusPartial = "partial"
	StudentStatusUnpaid  = "unpaid"
)

type Student struct {
	ID            uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name          string         `gorm:"not null" json:"name"`
	Class         string         `gorm:"not null;index" json:"class"`
	Session       string         `gorm:"not null" json:"session"`
	Term          string         `gorm:"not null" json:"term"`
	ParentID      *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	UserID        *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	TotalFees     int64          `gorm:"not null;check:total_fees >= 0" json:"total_fees"`
	AmountPaid    int64          `gorm:"not null;default:0;check:amount_paid >= 0" json:"amount_paid"`
	PaymentStatus string         `gorm:"not null;default:'unpaid';index" json:"payment_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (student *Student) BeforeCreate(tx *gorm.DB) (err error) {
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	if student.PaymentStatus == "" {
		student.PaymentStatus = PaymentStatusFor(student.AmountPaid, student.TotalFees)
	}
	return
}

func (student *Student) Outstanding() int64 {
	if student.AmountPaid >= student.TotalFees {
		return 0
	}
	return student.TotalFees - student.AmountPaid
}

// PaymentStatusFor derives the account status from cumulative payments.
func PaymentStatusFor(amountPaid, totalFees int64) string {
	switch {
	case amountPaid >= totalFees:
		return StudentStatusPaid
	case amountPaid > 0:
		return StudentStatusPartial
	default:
		return StudentStatusUnpaid
	}
}
