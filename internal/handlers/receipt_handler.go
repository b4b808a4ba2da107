package handlers

import (
	"net/http"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/middleware"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/receipt"
	"github.com/gin-gonic/gin"
)

// visiblePayment loads a payment and checks the user may see its student.
func visiblePayment(c *gin.Context) (*models.Payment, *models.User, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, nil, false
	}
	user, ok := requireUser(c)
	if !ok {
		return nil, nil, false
	}
	s, ok := requireStore(c)
	if !ok {
		return nil, nil, false
	}

	p, err := s.GetPayment(c.Request.Context(), id)
	if err != nil || p.Student == nil || !user.CanSee(p.Student) {
		helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
		return nil, nil, false
	}
	return p, user, true
}

// GetReceipt renders the receipt for a payment. Records sharing the same
// gateway reference are rendered together as a bulk receipt.
func GetReceipt(c *gin.Context) {
	p, user, ok := visiblePayment(c)
	if !ok {
		return
	}
	s, _ := requireStore(c)

	filter, err := paymentScope(c.Request.Context(), s, user)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving payments.")
		return
	}
	filter.Reference = p.TransactionID

	siblings, _, err := s.ListPayments(c.Request.Context(), filter)
	if err != nil || len(siblings) == 0 {
		siblings = []models.Payment{*p}
	}

	r, err := receipt.FromPayments(middleware.GetSettings(c).SchoolName, siblings...)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to build receipt.")
		return
	}
	html, err := receipt.RenderBytes(r)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to render receipt.")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func GetReceiptQR(c *gin.Context) {
	p, _, ok := visiblePayment(c)
	if !ok {
		return
	}

	png, err := receipt.QRCode(middleware.GetSettings(c).JWTSecret, p)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

type ValidateReceiptRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

func ValidateReceipt(c *gin.Context) {
	var req ValidateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}
	s, ok := requireStore(c)
	if !ok {
		return
	}

	claims, err := receipt.ParseQRData(req.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format")
		return
	}

	p, err := s.GetPayment(c.Request.Context(), claims.PaymentID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
		return
	}

	if !claims.Matches(middleware.GetSettings(c).JWTSecret, p) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Receipt is valid.",
		"payment": p,
	})
}
