package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/farellandr/schoolfees/internal/gateway"
	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/middleware"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/payment"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requireStore(c *gin.Context) (store.Store, bool) {
	s := middleware.GetStore(c)
	if s == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Store not found.")
		return nil, false
	}
	return s, true
}

func requireUser(c *gin.Context) (*models.User, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not found in token.")
		return nil, false
	}
	return user, true
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid "+name+".")
		return uuid.Nil, false
	}
	return id, true
}

func parsePaging(c *gin.Context) (page, limit int, ok bool) {
	page, err := helpers.StringToInt(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return 0, 0, false
	}
	limit, err = helpers.StringToInt(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return 0, 0, false
	}
	return page, limit, true
}

func totalPages(total int64, limit int) int64 {
	return (total + int64(limit) - 1) / int64(limit)
}

// studentScope limits a student query to the accounts the user may see.
func studentScope(user *models.User) store.StudentFilter {
	var filter store.StudentFilter
	if user.Role.Capabilities().CanViewAll {
		return filter
	}
	id := user.ID
	switch user.Role.Name {
	case models.RoleParent:
		filter.ParentID = &id
	case models.RoleStudent:
		filter.UserID = &id
	default:
		nobody := uuid.Nil
		filter.ParentID = &nobody
	}
	return filter
}

// paymentScope limits a payment query to the students the user may see.
func paymentScope(ctx context.Context, s store.Store, user *models.User) (store.PaymentFilter, error) {
	if user.Role.Capabilities().CanViewAll {
		return store.PaymentFilter{}, nil
	}
	students, _, err := s.ListStudents(ctx, studentScope(user))
	if err != nil {
		return store.PaymentFilter{}, err
	}
	filter := store.PaymentFilter{Restrict: true}
	for _, st := range students {
		filter.StudentIDs = append(filter.StudentIDs, st.ID)
	}
	return filter, nil
}

// RespondWithAppError maps domain errors to HTTP responses.
func RespondWithAppError(c *gin.Context, err error) {
	var (
		validationErr   *gateway.ValidationError
		gatewayErr      *gateway.GatewayError
		verificationErr *gateway.VerificationError
		rejectedErr     *payment.RejectedError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, helpers.ErrorResponse{
			Error:   helpers.HTTPStatusText(http.StatusBadRequest),
			Message: validationErr.Error(),
			Fields:  map[string]string{validationErr.Field: validationErr.Message},
		})
	case errors.As(err, &rejectedErr):
		helpers.RespondWithError(c, http.StatusPaymentRequired, rejectedErr.Message)
	case errors.Is(err, payment.ErrPaymentRejected):
		helpers.RespondWithError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, payment.ErrVerificationTimeout):
		helpers.RespondWithError(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, payment.ErrWidgetCancelled), errors.Is(err, payment.ErrInvalidTransition):
		helpers.RespondWithError(c, http.StatusConflict, err.Error())
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":          helpers.HTTPStatusText(http.StatusBadGateway),
			"message":        gatewayErr.Message,
			"correlation_id": gatewayErr.CorrelationID,
		})
	case errors.As(err, &verificationErr):
		helpers.RespondWithError(c, http.StatusBadGateway, verificationErr.Message)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, payment.ErrSessionNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, "Not found.")
	case errors.Is(err, store.ErrDuplicate):
		helpers.RespondWithError(c, http.StatusConflict, "Record already exists.")
	default:
		helpers.RespondWithError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}
