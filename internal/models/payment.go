package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

const PaymentMethodRemita = "remita"

// Payment is an append-only ledger entry. TransactionID holds the gateway
// reference; together with StudentID it is the idempotency key.
type Payment struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	StudentID       uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_payments_reference_student,priority:2" json:"student_id"`
	Student         *Student       `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	PayerID         *uuid.UUID     `gorm:"type:uuid;index" json:"payer_id,omitempty"`
	Amount          int64          `gorm:"not null;check:amount > 0" json:"amount"`
	Method          string         `gorm:"not null" json:"payment_method"`
	TransactionID   string         `gorm:"not null;uniqueIndex:idx_payments_reference_student,priority:1" json:"transaction_id"`
	OrderID         string         `gorm:"index" json:"order_id"`
	Session         string         `gorm:"index" json:"session"`
	Term            string         `json:"term"`
	Status          string         `gorm:"not null;default:'pending';index" json:"status"`
	ReceiptNumber   string         `gorm:"index" json:"receipt_number"`
	ReceiptURL      string         `json:"receipt_url,omitempty"`
	GatewayResponse datatypes.JSON `gorm:"type:jsonb" json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return
}

func (payment *Payment) Completed() bool {
	return payment.Status == PaymentStatusCompleted
}
