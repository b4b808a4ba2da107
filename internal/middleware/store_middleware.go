package middleware

import (
	"time"

	"github.com/farellandr/schoolfees/internal/payment"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/gin-gonic/gin"
)

func StoreMiddleware(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("store", s)
		c.Next()
	}
}

func GetStore(c *gin.Context) store.Store {
	s, exists := c.Get("store")
	if !exists {
		return nil
	}
	return s.(store.Store)
}

func PaymentManagerMiddleware(manager *payment.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("payment_manager", manager)
		c.Next()
	}
}

func GetPaymentManager(c *gin.Context) *payment.Manager {
	manager, exists := c.Get("payment_manager")
	if !exists {
		return nil
	}
	return manager.(*payment.Manager)
}

// Settings are the values handlers need from configuration.
type Settings struct {
	JWTSecret  string
	TokenTTL   time.Duration
	SchoolName string
}

func SettingsMiddleware(settings Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("settings", settings)
		c.Next()
	}
}

func GetSettings(c *gin.Context) Settings {
	settings, exists := c.Get("settings")
	if !exists {
		return Settings{}
	}
	return settings.(Settings)
}
