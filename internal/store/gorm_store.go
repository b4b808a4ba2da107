package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farellandr/schoolfees/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&student).Error; err != nil {
		return nil, notFound(err)
	}
	return &student, nil
}

func (s *GormStore) FindPayment(ctx context.Context, reference string, studentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("transaction_id = ? AND student_id = ?", reference, studentID).
		First(&payment).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (s *GormStore) AppendPayment(ctx context.Context, payment *models.Payment) error {
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("error appending payment: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateStudentTotals(ctx context.Context, studentID uuid.UUID, amountPaid int64, status string) error {
	result := s.db.WithContext(ctx).Model(&models.Student{}).
		Where("id = ?", studentID).
		Updates(map[string]interface{}{"amount_paid": amountPaid, "payment_status": status})
	if result.Error != nil {
		return fmt.Errorf("error updating student totals: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrNotFound
	}
	return nil
}

// Atomically runs fn in a transaction holding a row lock on the student.
func (s *GormStore) Atomically(ctx context.Context, studentID uuid.UUID, fn func(Ledger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", studentID).
			First(&student).Error
		if err != nil {
			return notFound(err)
		}
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Role").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role").Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, fullName, phone string) (*models.User, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"full_name": fullName, "phone_number": phone})
	if result.Error != nil {
		return nil, fmt.Errorf("error updating profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *GormStore) ListStudents(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Student{})
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(class) LIKE ?", like, like)
	}
	if filter.Class != "" {
		query = query.Where("class = ?", filter.Class)
	}
	if filter.Status != "" {
		query = query.Where("payment_status = ?", filter.Status)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting students: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}

	var students []models.Student
	if err := query.Order("name ASC").Find(&students).Error; err != nil {
		return nil, 0, fmt.Errorf("error listing students: %w", err)
	}
	return students, total, nil
}

func (s *GormStore) CreateStudent(ctx context.Context, student *models.Student) error {
	if err := s.db.WithContext(ctx).Create(student).Error; err != nil {
		return fmt.Errorf("error creating student: %w", err)
	}
	return nil
}

// UpdateStudent saves descriptive fields. amount_paid only moves through the ledger.
func (s *GormStore) UpdateStudent(ctx context.Context, student *models.Student) error {
	status := gorm.Expr(
		"CASE WHEN amount_paid >= ? THEN ? WHEN amount_paid > 0 THEN ? ELSE ? END",
		student.TotalFees, models.StudentStatusPaid, models.StudentStatusPartial, models.StudentStatusUnpaid,
	)
	result := s.db.WithContext(ctx).Model(&models.Student{}).
		Where("id = ?", student.ID).
		Updates(map[string]interface{}{
			"name":           student.Name,
			"class":          student.Class,
			"session":        student.Session,
			"term":           student.Term,
			"parent_id":      student.ParentID,
			"user_id":        student.UserID,
			"email":          student.Email,
			"phone":          student.Phone,
			"total_fees":     student.TotalFees,
			"payment_status": status,
		})
	if result.Error != nil {
		return fmt.Errorf("error updating student: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStudent soft-deletes the account. Payment records are kept.
func (s *GormStore) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Student{})
	if result.Error != nil {
		return fmt.Errorf("error deleting student: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Preload("Student", func(db *gorm.DB) *gorm.DB {
		return db.Unscoped()
	}).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (s *GormStore) ListPayments(ctx context.Context, filter PaymentFilter) ([]models.Payment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if filter.Restrict || len(filter.StudentIDs) > 0 {
		if len(filter.StudentIDs) == 0 {
			return []models.Payment{}, 0, nil
		}
		query = query.Where("payments.student_id IN ?", filter.StudentIDs)
	}
	if filter.Reference != "" {
		query = query.Where("payments.transaction_id = ?", filter.Reference)
	}
	if filter.Status != "" {
		query = query.Where("payments.status = ?", filter.Status)
	}
	if filter.Session != "" {
		query = query.Where("payments.session = ?", filter.Session)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Joins("LEFT JOIN students ON students.id = payments.student_id").
			Where("LOWER(payments.transaction_id) LIKE ? OR LOWER(students.name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting payments: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}

	var payments []models.Payment
	err := query.Preload("Student", func(db *gorm.DB) *gorm.DB {
		return db.Unscoped()
	}).Order("payments.created_at DESC").Find(&payments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("error listing payments: %w", err)
	}
	return payments, total, nil
}

func (s *GormStore) SumCompletedPayments(ctx context.Context, studentID uuid.UUID) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("student_id = ? AND status = ?", studentID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("error summing payments: %w", err)
	}
	return sum, nil
}
