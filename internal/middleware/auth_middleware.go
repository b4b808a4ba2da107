package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuthMiddleware accepts "Authorization: Bearer <token>", loads the user
// named by the token and stores it under "user".
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Authorization token required.")
			c.Abort()
			return
		}

		secret := GetSettings(c).JWTSecret
		if secret == "" {
			helpers.RespondWithError(c, http.StatusInternalServerError, "JWT_SECRET not configured.")
			c.Abort()
			return
		}

		userID, err := parseToken(strings.TrimSpace(tokenString), secret)
		if err != nil {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid or expired token.")
			c.Abort()
			return
		}

		s := GetStore(c)
		if s == nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Store not found.")
			c.Abort()
			return
		}

		user, err := s.GetUser(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				helpers.RespondWithError(c, http.StatusUnauthorized, "User no longer exists.")
			} else {
				helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving user.")
			}
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Next()
	}
}

func parseToken(tokenString, secret string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}

	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("token has no user_id")
	}
	return uuid.Parse(raw)
}

func CurrentUser(c *gin.Context) *models.User {
	user, exists := c.Get("user")
	if !exists {
		return nil
	}
	return user.(*models.User)
}

// RequireCapability rejects users whose role lacks the capability.
func RequireCapability(allowed func(models.Capabilities) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !allowed(user.Role.Capabilities()) {
			helpers.RespondWithError(c, http.StatusForbidden, message)
			c.Abort()
			return
		}
		c.Next()
	}
}

func CanPay(caps models.Capabilities) bool    { return caps.CanPay }
func CanManage(caps models.Capabilities) bool { return caps.CanManage }
