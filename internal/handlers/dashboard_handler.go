package handlers

import (
	"net/http"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/gin-gonic/gin"
)

const recentPaymentsLimit = 5

type DashboardTotals struct {
	Students        int    `json:"students"`
	TotalFees       int64  `json:"total_fees"`
	TotalPaid       int64  `json:"total_paid"`
	Outstanding     int64  `json:"outstanding"`
	Paid            int    `json:"paid"`
	Partial         int    `json:"partial"`
	Unpaid          int    `json:"unpaid"`
	TotalFeesText   string `json:"total_fees_text"`
	TotalPaidText   string `json:"total_paid_text"`
	OutstandingText string `json:"outstanding_text"`
}

func summarize(students []models.Student) DashboardTotals {
	var t DashboardTotals
	t.Students = len(students)
	for _, st := range students {
		t.TotalFees += st.TotalFees
		t.TotalPaid += st.AmountPaid
		t.Outstanding += st.Outstanding()
		switch st.PaymentStatus {
		case models.StudentStatusPaid:
			t.Paid++
		case models.StudentStatusPartial:
			t.Partial++
		default:
			t.Unpaid++
		}
	}
	t.TotalFeesText = helpers.FormatNaira(t.TotalFees)
	t.TotalPaidText = helpers.FormatNaira(t.TotalPaid)
	t.OutstandingText = helpers.FormatNaira(t.Outstanding)
	return t
}

func Dashboard(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	students, _, err := s.ListStudents(ctx, studentScope(user))
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving students.")
		return
	}

	filter, err := paymentScope(ctx, s, user)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return
	}
	filter.Limit = recentPaymentsLimit

	recent, _, err := s.ListPayments(ctx, filter)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":            user,
		"capabilities":    user.Role.Capabilities(),
		"totals":          summarize(students),
		"students":        students,
		"recent_payments": recent,
	})
}
