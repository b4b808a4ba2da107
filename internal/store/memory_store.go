package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/farellandr/schoolfees/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs the demo mode
// and tests. All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]models.User
	students map[uuid.UUID]models.Student
	deleted  map[uuid.UUID]models.Student
	payments []models.Payment

	// txMu serialises Atomically callers and the student writes that could
	// interleave with them. Ledger writes inside fn go through mu as usual.
	txMu sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]models.User),
		students: make(map[uuid.UUID]models.Student),
		deleted:  make(map[uuid.UUID]models.Student),
	}
}

func (s *MemoryStore) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(user.Email)
	s.users[user.ID] = user
}

func (s *MemoryStore) GetStudent(_ context.Context, id uuid.UUID) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &student, nil
}

func (s *MemoryStore) FindPayment(_ context.Context, reference string, studentID uuid.UUID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.TransactionID == reference && p.StudentID == studentID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) AppendPayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.TransactionID == payment.TransactionID && p.StudentID == payment.StudentID {
			return ErrDuplicate
		}
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	s.payments = append(s.payments, *payment)
	return nil
}

func (s *MemoryStore) UpdateStudentTotals(_ context.Context, studentID uuid.UUID, amountPaid int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.students[studentID]
	if !ok {
		return ErrNotFound
	}
	student.AmountPaid = amountPaid
	student.PaymentStatus = status
	student.UpdatedAt = time.Now()
	s.students[studentID] = student
	return nil
}

// Atomically runs fn for one student. When fn fails, payments it appended
// for that student are dropped and the student row is restored.
func (s *MemoryStore) Atomically(_ context.Context, studentID uuid.UUID, fn func(Ledger) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	before, ok := s.students[studentID]
	logged := len(s.payments)
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if err := fn(s); err != nil {
		s.rollback(studentID, before, logged)
		return err
	}
	return nil
}

func (s *MemoryStore) rollback(studentID uuid.UUID, before models.Student, logged int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.payments[:logged]
	for _, p := range s.payments[logged:] {
		if p.StudentID != studentID {
			kept = append(kept, p)
		}
	}
	s.payments = kept
	s.students[studentID] = before
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUserProfile(_ context.Context, id uuid.UUID, fullName, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.FullName = fullName
	u.PhoneNumber = phone
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return &u, nil
}

func (s *MemoryStore) ListStudents(_ context.Context, filter StudentFilter) ([]models.Student, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var out []models.Student
	for _, st := range s.students {
		if search != "" && !strings.Contains(strings.ToLower(st.Name), search) &&
			!strings.Contains(strings.ToLower(st.Class), search) {
			continue
		}
		if filter.Class != "" && st.Class != filter.Class {
			continue
		}
		if filter.Status != "" && st.PaymentStatus != filter.Status {
			continue
		}
		if filter.ParentID != nil && (st.ParentID == nil || *st.ParentID != *filter.ParentID) {
			continue
		}
		if filter.UserID != nil && (st.UserID == nil || *st.UserID != *filter.UserID) {
			continue
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := int64(len(out))
	return page(out, filter.Offset, filter.Limit), total, nil
}

func (s *MemoryStore) CreateStudent(_ context.Context, student *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	if _, exists := s.students[student.ID]; exists {
		return ErrDuplicate
	}
	student.PaymentStatus = models.PaymentStatusFor(student.AmountPaid, student.TotalFees)
	now := time.Now()
	student.CreatedAt, student.UpdatedAt = now, now
	s.students[student.ID] = *student
	return nil
}

func (s *MemoryStore) UpdateStudent(_ context.Context, student *models.Student) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.students[student.ID]
	if !ok {
		return ErrNotFound
	}
	current.Name = student.Name
	current.Class = student.Class
	current.Session = student.Session
	current.Term = student.Term
	current.ParentID = student.ParentID
	current.UserID = student.UserID
	current.Email = student.Email
	current.Phone = student.Phone
	current.TotalFees = student.TotalFees
	current.PaymentStatus = models.PaymentStatusFor(current.AmountPaid, current.TotalFees)
	current.UpdatedAt = time.Now()
	s.students[student.ID] = current
	return nil
}

func (s *MemoryStore) DeleteStudent(_ context.Context, id uuid.UUID) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.students, id)
	s.deleted[id] = st
	return nil
}

func (s *MemoryStore) lookupStudent(id uuid.UUID) *models.Student {
	if st, ok := s.students[id]; ok {
		return &st
	}
	if st, ok := s.deleted[id]; ok {
		return &st
	}
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.ID == id {
			p := p
			p.Student = s.lookupStudent(p.StudentID)
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPayments(_ context.Context, filter PaymentFilter) ([]models.Payment, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[uuid.UUID]bool, len(filter.StudentIDs))
	for _, id := range filter.StudentIDs {
		allowed[id] = true
	}
	restrict := filter.Restrict || len(filter.StudentIDs) > 0
	search := strings.ToLower(filter.Search)

	var out []models.Payment
	for _, p := range s.payments {
		if restrict && !allowed[p.StudentID] {
			continue
		}
		if filter.Reference != "" && p.TransactionID != filter.Reference {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Session != "" && p.Session != filter.Session {
			continue
		}
		p.Student = s.lookupStudent(p.StudentID)
		if search != "" {
			name := ""
			if p.Student != nil {
				name = strings.ToLower(p.Student.Name)
			}
			if !strings.Contains(strings.ToLower(p.TransactionID), search) && !strings.Contains(name, search) {
				continue
			}
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	return page(out, filter.Offset, filter.Limit), total, nil
}

func (s *MemoryStore) SumCompletedPayments(_ context.Context, studentID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, p := range s.payments {
		if p.StudentID == studentID && p.Status == models.PaymentStatusCompleted {
			sum += p.Amount
		}
	}
	return sum, nil
}

func page[T any](items []T, offset, limit int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
