package store

import (
	"context"
	"fmt"

	"github.com/farellandr/schoolfees/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const DemoPassword = "password123"

var (
	DemoParentID  = uuid.MustParse("6f1c2a52-0b8e-4c8e-9c3a-1d2f3e4a5b01")
	DemoStudentID = uuid.MustParse("6f1c2a52-0b8e-4c8e-9c3a-1d2f3e4a5b02")
	DemoAdminID   = uuid.MustParse("6f1c2a52-0b8e-4c8e-9c3a-1d2f3e4a5b03")
)

// DemoData is the fixed dataset the portal ships with for demonstrations.
type DemoData struct {
	Roles    []models.Role
	Users    []models.User
	Students []models.Student
}

func NewDemoData() (*DemoData, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing demo password: %w", err)
	}

	roles := map[string]models.Role{}
	for _, name := range []string{models.RoleParent, models.RoleStudent, models.RoleAdmin} {
		roles[name] = models.Role{ID: uuid.New(), Name: name}
	}

	user := func(id uuid.UUID, email, name, phone, role string) models.User {
		r := roles[role]
		return models.User{ID: id, Email: email, Password: string(hashed), FullName: name, PhoneNumber: phone, RoleID: r.ID, Role: r}
	}

	parentID, studentUserID := DemoParentID, DemoStudentID
	student := func(name, class string, fees int64, parent, self *uuid.UUID) models.Student {
		return models.Student{
			ID:            uuid.New(),
			Name:          name,
			Class:         class,
			Session:       "2024/2025",
			Term:          "First Term",
			ParentID:      parent,
			UserID:        self,
			TotalFees:     fees,
			PaymentStatus: models.StudentStatusUnpaid,
		}
	}

	return &DemoData{
		Roles: []models.Role{roles[models.RoleParent], roles[models.RoleStudent], roles[models.RoleAdmin]},
		Users: []models.User{
			user(DemoParentID, "parent@demo.com", "John Doe", "08012345678", models.RoleParent),
			user(DemoStudentID, "student@demo.com", "Charlie Smith", "08023456789", models.RoleStudent),
			user(DemoAdminID, "admin@demo.com", "School Admin", "08034567890", models.RoleAdmin),
		},
		Students: []models.Student{
			student("Alice Doe", "Primary 6A", 120000, &parentID, nil),
			student("Bob Doe", "Primary 5B", 120000, &parentID, nil),
			student("Charlie Smith", "JSS 2C", 180000, nil, &studentUserID),
		},
	}, nil
}

// Seed loads the demo dataset into an empty memory store.
func (s *MemoryStore) Seed(ctx context.Context, data *DemoData) error {
	for _, u := range data.Users {
		s.AddUser(u)
	}
	for i := range data.Students {
		st := data.Students[i]
		if err := s.CreateStudent(ctx, &st); err != nil {
			return err
		}
	}
	return nil
}
