// Package store persists users, student accounts and the payment ledger.
package store

import (
	"context"
	"errors"

	"github.com/farellandr/schoolfees/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type StudentFilter struct {
	Search   string
	Class    string
	Status   string
	ParentID *uuid.UUID
	UserID   *uuid.UUID
	Offset   int
	Limit    int
}

type PaymentFilter struct {
	Reference  string
	Status     string
	Session    string
	Search     string
	StudentIDs []uuid.UUID
	// Restrict, when set, limits results to StudentIDs even if the list is empty.
	Restrict bool
	Offset   int
	Limit    int
}

// Ledger is the part of the store the reconciler needs. Atomically runs fn
// with the student's account locked against concurrent ledger updates.
type Ledger interface {
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	FindPayment(ctx context.Context, reference string, studentID uuid.UUID) (*models.Payment, error)
	AppendPayment(ctx context.Context, payment *models.Payment) error
	UpdateStudentTotals(ctx context.Context, studentID uuid.UUID, amountPaid int64, status string) error
	Atomically(ctx context.Context, studentID uuid.UUID, fn func(Ledger) error) error
}

type Store interface {
	Ledger

	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, fullName, phone string) (*models.User, error)

	ListStudents(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	UpdateStudent(ctx context.Context, student *models.Student) error
	DeleteStudent(ctx context.Context, id uuid.UUID) error

	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]models.Payment, int64, error)
	SumCompletedPayments(ctx context.Context, studentID uuid.UUID) (int64, error)
}
