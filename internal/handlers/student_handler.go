package handlers

import (
	"net/http"
	"strings"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type StudentRequest struct {
	Name      string     `json:"name" binding:"required,min=2"`
	Class     string     `json:"class" binding:"required"`
	Session   string     `json:"session" binding:"required"`
	Term      string     `json:"term" binding:"required,oneof='First Term' 'Second Term' 'Third Term'"`
	ParentID  *uuid.UUID `json:"parent_id"`
	UserID    *uuid.UUID `json:"user_id"`
	Email     string     `json:"email" binding:"omitempty,email"`
	Phone     string     `json:"phone"`
	TotalFees int64      `json:"total_fees" binding:"gte=0"`
}

func (r StudentRequest) apply(student *models.Student) {
	student.Name = strings.TrimSpace(r.Name)
	student.Class = strings.TrimSpace(r.Class)
	student.Session = r.Session
	student.Term = r.Term
	student.ParentID = r.ParentID
	student.UserID = r.UserID
	student.Email = r.Email
	student.Phone = r.Phone
	student.TotalFees = r.TotalFees
}

func ListStudents(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}
	page, limit, ok := parsePaging(c)
	if !ok {
		return
	}

	filter := studentScope(user)
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Class = c.Query("class")
	filter.Status = c.Query("status")
	filter.Offset = (page - 1) * limit
	filter.Limit = limit

	students, total, err := s.ListStudents(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving students.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"students":    students,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}

func GetStudent(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	user, ok := requireUser(c)
	if !ok {
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}

	student, err := s.GetStudent(c.Request.Context(), id)
	if err != nil || !user.CanSee(student) {
		helpers.RespondWithError(c, http.StatusNotFound, "Student not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student":     student,
		"outstanding": student.Outstanding(),
	})
}

func CreateStudent(c *gin.Context) {
	var req StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}

	student := models.Student{ID: uuid.New()}
	req.apply(&student)
	student.PaymentStatus = models.PaymentStatusFor(0, student.TotalFees)

	if err := s.CreateStudent(c.Request.Context(), &student); err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Student created successfully.",
		"student": student,
	})
}

func UpdateStudent(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}

	student, err := s.GetStudent(c.Request.Context(), id)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}
	req.apply(student)

	if err := s.UpdateStudent(c.Request.Context(), student); err != nil {
		RespondWithAppError(c, err)
		return
	}

	updated, err := s.GetStudent(c.Request.Context(), id)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Student updated successfully.",
		"student": updated,
	})
}

func DeleteStudent(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}

	if err := s.DeleteStudent(c.Request.Context(), id); err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully."})
}
