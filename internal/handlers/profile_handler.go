package handlers

import (
	"net/http"
	"strings"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/gin-gonic/gin"
)

func GetProfile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"capabilities": user.Role.Capabilities(),
	})
}

type UpdateProfileRequest struct {
	FullName    string `json:"full_name" binding:"required,min=2"`
	PhoneNumber string `json:"phone" binding:"omitempty,min=7,max=20"`
}

func UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
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

	updated, err := s.UpdateUserProfile(c.Request.Context(), user.ID, strings.TrimSpace(req.FullName), strings.TrimSpace(req.PhoneNumber))
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully.",
		"user":    updated,
	})
}
