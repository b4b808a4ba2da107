package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/gin-gonic/gin"
)

func paymentFilterFromQuery(c *gin.Context, s store.Store, user *models.User) (store.PaymentFilter, bool) {
	filter, err := paymentScope(c.Request.Context(), s, user)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return filter, false
	}
	filter.Status = c.Query("status")
	filter.Session = c.Query("session")
	filter.Search = strings.TrimSpace(c.Query("search"))
	return filter, true
}

func ListPayments(c *gin.Context) {
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
	filter, ok := paymentFilterFromQuery(c, s, user)
	if !ok {
		return
	}
	filter.Offset = (page - 1) * limit
	filter.Limit = limit

	payments, total, err := s.ListPayments(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments":    payments,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}

var reportHeader = []string{"Date", "Student", "Class", "Session", "Term", "Amount", "Method", "Transaction ID", "Receipt Number", "Status"}

// ExportPayments writes the filtered payment list as a CSV attachment.
func ExportPayments(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}
	filter, ok := paymentFilterFromQuery(c, s, user)
	if !ok {
		return
	}

	payments, _, err := s.ListPayments(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return
	}

	filename := fmt.Sprintf("payment_report_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err := w.Write(reportHeader); err != nil {
		return
	}
	for _, p := range payments {
		studentName, class := "Unknown", ""
		if p.Student != nil {
			studentName, class = p.Student.Name, p.Student.Class
		}
		record := []string{
			p.CreatedAt.Format("2006-01-02"),
			studentName,
			class,
			p.Session,
			p.Term,
			helpers.FormatAmount(p.Amount),
			p.Method,
			p.TransactionID,
			p.ReceiptNumber,
			p.Status,
		}
		if err := w.Write(record); err != nil {
			return
		}
	}
	w.Flush()
}
