package server

import (
	"fmt"
	"log"

	"github.com/farellandr/schoolfees/config"
	"github.com/farellandr/schoolfees/internal/handlers"
	"github.com/farellandr/schoolfees/internal/helpers"
	"github.com/farellandr/schoolfees/internal/ledger"
	"github.com/farellandr/schoolfees/internal/middleware"
	"github.com/farellandr/schoolfees/internal/payment"
	"github.com/farellandr/schoolfees/internal/receipt"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/gin-gonic/gin"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	remitaCfg, err := config.LoadRemitaConfig()
	if err != nil {
		return fmt.Errorf("failed to load remita config: %v", err)
	}
	paymentCfg, err := config.LoadPaymentConfig()
	if err != nil {
		return fmt.Errorf("failed to load payment config: %v", err)
	}
	authCfg, err := config.LoadAuthConfig()
	if err != nil {
		return fmt.Errorf("failed to load auth config: %v", err)
	}
	receiptCfg, err := config.LoadReceiptConfig()
	if err != nil {
		return fmt.Errorf("failed to load receipt config: %v", err)
	}

	s, err := config.InitStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %v", err)
	}

	remita, err := config.InitRemitaClient(remitaCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize remita client: %v", err)
	}

	manager := payment.NewManager(s, remita, remita, ledger.NewReconciler(s), payment.ManagerConfig{
		WidgetPublicKey: remitaCfg.PublicKey,
		Policy:          paymentCfg.Policy,
		IdleTTL:         paymentCfg.SessionIdleTTL,
		ReapSchedule:    paymentCfg.ReapSchedule,
	})
	if receiptCfg.ArchiveDir != "" {
		manager.OnComplete(archiveReceipt(receiptCfg))
	}
	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()

	r := gin.Default()

	setupRoutes(r, s, manager, middleware.Settings{
		JWTSecret:  authCfg.JWTSecret,
		TokenTTL:   authCfg.TokenTTL,
		SchoolName: receiptCfg.SchoolName,
	})

	return r.Run(":" + cfg.Port)
}

// archiveReceipt writes the receipt of every completed session to disk.
func archiveReceipt(cfg *config.ReceiptConfig) func(payment.Snapshot) {
	storage := helpers.ReceiptStorageConfig{BasePath: cfg.ArchiveDir, FileMode: helpers.DefaultReceiptStorageConfig.FileMode}
	return func(snap payment.Snapshot) {
		if len(snap.Payments) == 0 {
			return
		}
		r, err := receipt.FromPayments(cfg.SchoolName, snap.Payments...)
		if err != nil {
			log.Printf("[PAYMENT] session %s: cannot build receipt: %v", snap.ID, err)
			return
		}
		html, err := receipt.RenderBytes(r)
		if err != nil {
			log.Printf("[PAYMENT] session %s: cannot render receipt: %v", snap.ID, err)
			return
		}
		path, err := helpers.SaveReceiptFile(html, snap.Payments[0].Session, r.ReceiptNumber, storage)
		if err != nil {
			log.Printf("[PAYMENT] session %s: cannot archive receipt: %v", snap.ID, err)
			return
		}
		log.Printf("[PAYMENT] session %s: receipt archived at %s", snap.ID, path)
	}
}

func setupRoutes(r *gin.Engine, s store.Store, manager *payment.Manager, settings middleware.Settings) {
	r.Use(middleware.StoreMiddleware(s))
	r.Use(middleware.PaymentManagerMiddleware(manager))
	r.Use(middleware.SettingsMiddleware(settings))

	public := r.Group("/v1")
	{
		public.POST("/login", handlers.Login)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.GET("/profile", handlers.GetProfile)
		protected.PUT("/profile", handlers.UpdateProfile)
		protected.GET("/dashboard", handlers.Dashboard)

		students := protected.Group("/students")
		{
			students.GET("", handlers.ListStudents)
			students.GET("/:id", handlers.GetStudent)

			manage := students.Group("")
			manage.Use(middleware.RequireCapability(middleware.CanManage, "Only administrators can manage students."))
			manage.POST("", handlers.CreateStudent)
			manage.PUT("/:id", handlers.UpdateStudent)
			manage.DELETE("/:id", handlers.DeleteStudent)
		}

		payments := protected.Group("/payments")
		{
			payments.GET("", handlers.ListPayments)
			payments.GET("/export", handlers.ExportPayments)
			payments.GET("/:id/receipt", handlers.GetReceipt)
			payments.GET("/:id/receipt/qr", handlers.GetReceiptQR)
		}

		protected.POST("/receipts/validate",
			middleware.RequireCapability(middleware.CanManage, "Only administrators can validate receipts."),
			handlers.ValidateReceipt)

		sessions := protected.Group("/payment-sessions")
		sessions.Use(middleware.RequireCapability(middleware.CanPay, "This account cannot make payments."))
		{
			sessions.POST("", handlers.OpenPaymentSession)
			sessions.GET("/:id", handlers.GetPaymentSession)
			sessions.POST("/:id/generate", handlers.GeneratePaymentReference)
			sessions.POST("/:id/launch", handlers.LaunchPaymentWidget)
			sessions.POST("/:id/widget", handlers.ReportWidgetOutcome)
			sessions.POST("/:id/verify", handlers.VerifyPaymentSession)
			sessions.DELETE("/:id", handlers.AbandonPaymentSession)
		}
	}
}
