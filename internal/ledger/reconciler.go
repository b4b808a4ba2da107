// Package ledger applies confirmed gateway payments to student accounts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/receipt"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConfirmedPayment is a settlement the gateway has confirmed for one student.
type ConfirmedPayment struct {
	StudentID     uuid.UUID
	PayerID       *uuid.UUID
	Amount        int64
	Reference     string
	OrderID       string
	ReceiptNumber string
	Raw           []byte
}

type Reconciler struct {
	ledger     store.Ledger
	locks      keyedMutex
	newReceipt func() string
}

func NewReconciler(ledger store.Ledger) *Reconciler {
	return &Reconciler{ledger: ledger, newReceipt: receipt.NewNumber}
}

// ApplyConfirmedPayment records cp exactly once per (reference, student).
// A repeated call returns the record created by the first one and leaves
// the account untouched.
func (r *Reconciler) ApplyConfirmedPayment(ctx context.Context, cp ConfirmedPayment) (*models.Payment, error) {
	if cp.Amount <= 0 {
		return nil, fmt.Errorf("confirmed amount must be positive, got %d", cp.Amount)
	}
	if strings.TrimSpace(cp.Reference) == "" {
		return nil, errors.New("confirmed payment has no reference")
	}

	unlock := r.locks.Lock(cp.StudentID)
	defer unlock()

	var result *models.Payment
	err := r.ledger.Atomically(ctx, cp.StudentID, func(tx store.Ledger) error {
		existing, err := tx.FindPayment(ctx, cp.Reference, cp.StudentID)
		if err == nil {
			log.Printf("[LEDGER] reference %s already applied to student %s", cp.Reference, cp.StudentID)
			result = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("error checking existing payment: %w", err)
		}

		student, err := tx.GetStudent(ctx, cp.StudentID)
		if err != nil {
			return fmt.Errorf("error loading student: %w", err)
		}

		if outstanding := student.Outstanding(); cp.Amount > outstanding {
			log.Printf("[LEDGER] student %s overpaid by %d on %s", student.ID, cp.Amount-outstanding, cp.Reference)
		}

		number := cp.ReceiptNumber
		if number == "" {
			number = r.newReceipt()
		}

		payment := &models.Payment{
			ID:            uuid.New(),
			StudentID:     student.ID,
			PayerID:       cp.PayerID,
			Amount:        cp.Amount,
			Method:        models.PaymentMethodRemita,
			TransactionID: cp.Reference,
			OrderID:       cp.OrderID,
			Session:       student.Session,
			Term:          student.Term,
			Status:        models.PaymentStatusCompleted,
			ReceiptNumber: number,
		}
		payment.ReceiptURL = receipt.URLFor(payment)
		if len(cp.Raw) > 0 {
			payment.GatewayResponse = datatypes.JSON(cp.Raw)
		}

		if err := tx.AppendPayment(ctx, payment); err != nil {
			return fmt.Errorf("error recording payment: %w", err)
		}

		amountPaid := student.AmountPaid + cp.Amount
		status := models.PaymentStatusFor(amountPaid, student.TotalFees)
		if err := tx.UpdateStudentTotals(ctx, student.ID, amountPaid, status); err != nil {
			return fmt.Errorf("error updating student totals: %w", err)
		}

		student.AmountPaid, student.PaymentStatus = amountPaid, status
		payment.Student = student

		log.Printf("[LEDGER] applied %d from %s to student %s (paid=%d status=%s)",
			cp.Amount, cp.Reference, student.ID, amountPaid, status)
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
