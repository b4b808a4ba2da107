package handlers

import (
	"errors"
	"net/http"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/middleware"
	"github.com/farellandr/schoolfees/internal/payment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OpenSessionRequest struct {
	StudentIDs  []uuid.UUID `json:"student_ids" binding:"required,min=1,dive,required"`
	Amount      int64       `json:"amount" binding:"gte=0"`
	Description string      `json:"description" binding:"max=200"`
}

func requireManager(c *gin.Context) (*payment.Manager, bool) {
	m := middleware.GetPaymentManager(c)
	if m == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Payment manager not found.")
		return nil, false
	}
	return m, true
}

// ownedSession resolves :id to a session opened by the current user.
func ownedSession(c *gin.Context) (*payment.Session, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	user, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	m, ok := requireManager(c)
	if !ok {
		return nil, false
	}

	s, err := m.Get(id, user.ID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Payment session not found.")
		return nil, false
	}
	return s, true
}

// OpenPaymentSession creates a session and immediately requests a reference.
// The session is kept even when issuance fails so the client can retry.
func OpenPaymentSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}
	user, ok := requireUser(c)
	if !ok {
		return
	}
	m, ok := requireManager(c)
	if !ok {
		return
	}

	s, err := m.Open(c.Request.Context(), user, payment.OpenRequest{
		StudentIDs:  req.StudentIDs,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	if _, err := s.Generate(c.Request.Context()); err != nil {
		c.JSON(http.StatusCreated, gin.H{
			"message": "Payment session created, but the payment reference could not be generated.",
			"session": s.Snapshot(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Payment reference generated.",
		"session": s.Snapshot(),
	})
}

func GetPaymentSession(c *gin.Context) {
	s, ok := ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Snapshot()})
}

func GeneratePaymentReference(c *gin.Context) {
	s, ok := ownedSession(c)
	if !ok {
		return
	}

	if _, err := s.Generate(c.Request.Context()); err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment reference generated.",
		"session": s.Snapshot(),
	})
}

func LaunchPaymentWidget(c *gin.Context) {
	s, ok := ownedSession(c)
	if !ok {
		return
	}

	launch, err := s.LaunchWidget()
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"widget":  launch,
		"session": s.Snapshot(),
	})
}

const (
	WidgetOutcomeSuccess = "success"
	WidgetOutcomeError   = "error"
	WidgetOutcomeClose   = "close"
)

type WidgetOutcomeRequest struct {
	Attempt int    `json:"attempt" binding:"required,gt=0"`
	Outcome string `json:"outcome" binding:"required,oneof=success error close"`
	Message string `json:"message" binding:"max=500"`
}

func ReportWidgetOutcome(c *gin.Context) {
	var req WidgetOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}
	s, ok := ownedSession(c)
	if !ok {
		return
	}

	var err error
	switch req.Outcome {
	case WidgetOutcomeSuccess:
		err = s.WidgetSucceeded(req.Attempt)
	case WidgetOutcomeError:
		err = s.WidgetFailed(req.Attempt, req.Message)
	case WidgetOutcomeClose:
		err = s.WidgetClosed(req.Attempt)
	}
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	status := http.StatusOK
	if req.Outcome == WidgetOutcomeSuccess {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"session": s.Snapshot()})
}

func VerifyPaymentSession(c *gin.Context) {
	s, ok := ownedSession(c)
	if !ok {
		return
	}

	snap, err := s.VerifyNow(c.Request.Context())
	if errors.Is(err, payment.ErrPaymentPending) {
		c.JSON(http.StatusAccepted, gin.H{
			"message": "Payment is still pending. Please check again shortly.",
			"session": snap,
		})
		return
	}
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment verified successfully.",
		"session": snap,
	})
}

func AbandonPaymentSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	user, ok := requireUser(c)
	if !ok {
		return
	}
	m, ok := requireManager(c)
	if !ok {
		return
	}

	if err := m.Discard(id, user.ID); err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment session closed."})
}
