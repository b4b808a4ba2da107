package store

import (
	"context"
	"testing"
	"time"

	"github.com/farellandr/schoolfees/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	data, err := NewDemoData()
	require.NoError(t, err)
	s := NewMemoryStore()
	require.NoError(t, s.Seed(context.Background(), data))
	return s
}

func TestMemoryStore_DemoSeed(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	parent, err := s.FindUserByEmail(ctx, " Parent@Demo.com ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleParent, parent.Role.Name)

	children, total, err := s.ListStudents(ctx, StudentFilter{ParentID: &parent.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "Alice Doe", children[0].Name)
	assert.Equal(t, "Bob Doe", children[1].Name)

	self, _, err := s.ListStudents(ctx, StudentFilter{UserID: &DemoStudentID})
	require.NoError(t, err)
	require.Len(t, self, 1)
	assert.Equal(t, int64(180000), self[0].TotalFees)
}

func TestMemoryStore_StudentFiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	found, total, err := s.ListStudents(ctx, StudentFilter{Search: "jss"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Charlie Smith", found[0].Name)

	page1, total, err := s.ListStudents(ctx, StudentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page1, 2)

	page2, _, err := s.ListStudents(ctx, StudentFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	none, _, err := s.ListStudents(ctx, StudentFilter{Status: models.StudentStatusPaid})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_UpdateStudentKeepsAmountPaid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	st := &models.Student{Name: "A", Class: "C", TotalFees: 1000}
	require.NoError(t, s.CreateStudent(ctx, st))
	require.NoError(t, s.UpdateStudentTotals(ctx, st.ID, 600, models.StudentStatusPartial))

	st.AmountPaid = 0
	st.TotalFees = 500
	require.NoError(t, s.UpdateStudent(ctx, st))

	got, err := s.GetStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.AmountPaid)
	assert.Equal(t, models.StudentStatusPaid, got.PaymentStatus)
}

func TestMemoryStore_DeleteKeepsPayments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	st := &models.Student{Name: "Gone", Class: "C", TotalFees: 1000}
	require.NoError(t, s.CreateStudent(ctx, st))
	p := &models.Payment{StudentID: st.ID, Amount: 100, TransactionID: "R1", Status: models.PaymentStatusCompleted}
	require.NoError(t, s.AppendPayment(ctx, p))

	require.NoError(t, s.DeleteStudent(ctx, st.ID))
	_, err := s.GetStudent(ctx, st.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Student)
	assert.Equal(t, "Gone", got.Student.Name)

	assert.ErrorIs(t, s.DeleteStudent(ctx, st.ID), ErrNotFound)
}

func TestMemoryStore_PaymentsUniqueAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := &models.Student{Name: "Alice", Class: "C", TotalFees: 1000}
	b := &models.Student{Name: "Bob", Class: "C", TotalFees: 1000}
	require.NoError(t, s.CreateStudent(ctx, a))
	require.NoError(t, s.CreateStudent(ctx, b))

	now := time.Now()
	require.NoError(t, s.AppendPayment(ctx, &models.Payment{StudentID: a.ID, Amount: 1, TransactionID: "R1", Session: "2024/2025", Status: models.PaymentStatusCompleted, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.AppendPayment(ctx, &models.Payment{StudentID: b.ID, Amount: 2, TransactionID: "R1", Session: "2023/2024", Status: models.PaymentStatusCompleted, CreatedAt: now}))
	assert.ErrorIs(t, s.AppendPayment(ctx, &models.Payment{StudentID: a.ID, Amount: 3, TransactionID: "R1"}), ErrDuplicate)

	all, total, err := s.ListPayments(ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, b.ID, all[0].StudentID)

	bySession, _, _ := s.ListPayments(ctx, PaymentFilter{Session: "2024/2025"})
	assert.Len(t, bySession, 1)

	byName, _, _ := s.ListPayments(ctx, PaymentFilter{Search: "bob"})
	require.Len(t, byName, 1)
	assert.Equal(t, int64(2), byName[0].Amount)

	restricted, total, _ := s.ListPayments(ctx, PaymentFilter{Restrict: true})
	assert.Empty(t, restricted)
	assert.Equal(t, int64(0), total)

	scoped, _, _ := s.ListPayments(ctx, PaymentFilter{StudentIDs: []uuid.UUID{a.ID}})
	assert.Len(t, scoped, 1)
}
