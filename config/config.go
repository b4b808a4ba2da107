package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/farellandr/schoolfees/internal/gateway"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/payment"
	"github.com/farellandr/schoolfees/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	StoreDriver string
	Port        string
	SeedDemo    bool
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:      os.Getenv("DB_HOST"),
		DBPort:      getEnvOrDefault("DB_PORT", "5432"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      os.Getenv("DB_NAME"),
		StoreDriver: getEnvOrDefault("STORE_DRIVER", StoreDriverPostgres),
		Port:        getEnvOrDefault("PORT", "8080"),
		SeedDemo:    getEnvBool("SEED_DEMO_DATA", true),
	}
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

type RemitaConfig struct {
	BaseURL       string
	MerchantID    string
	ServiceTypeID string
	APIKey        string
	PublicKey     string
	Timeout       time.Duration
}

func LoadRemitaConfig() (*RemitaConfig, error) {
	cfg := &RemitaConfig{
		BaseURL:       getEnvOrDefault("REMITA_BASE_URL", "https://remitademo.net"),
		MerchantID:    os.Getenv("REMITA_MERCHANT_ID"),
		ServiceTypeID: os.Getenv("REMITA_SERVICE_TYPE_ID"),
		APIKey:        os.Getenv("REMITA_API_KEY"),
		PublicKey:     os.Getenv("REMITA_PUBLIC_KEY"),
		Timeout:       getEnvDuration("REMITA_TIMEOUT", 20*time.Second),
	}
	if cfg.MerchantID == "" || cfg.ServiceTypeID == "" || cfg.APIKey == "" {
		log.Println("[REMITA] merchant credentials are incomplete; payment requests will be refused")
	}
	return cfg, nil
}

func InitRemitaClient(cfg *RemitaConfig) (*gateway.Client, error) {
	client := gateway.NewClient(gateway.Config{
		BaseURL:       cfg.BaseURL,
		MerchantID:    cfg.MerchantID,
		ServiceTypeID: cfg.ServiceTypeID,
		APIKey:        cfg.APIKey,
		Timeout:       cfg.Timeout,
	})

	return client, nil
}

type PaymentConfig struct {
	Policy         payment.Policy
	SessionIdleTTL time.Duration
	ReapSchedule   string
}

func LoadPaymentConfig() (*PaymentConfig, error) {
	d := payment.DefaultPolicy()
	return &PaymentConfig{
		Policy: payment.Policy{
			PendingInterval:    getEnvDuration("VERIFY_PENDING_INTERVAL", d.PendingInterval),
			VerifyCeiling:      getEnvDuration("VERIFY_CEILING", d.VerifyCeiling),
			TransportBackoff:   getEnvDuration("VERIFY_TRANSPORT_BACKOFF", d.TransportBackoff),
			MaxTransportErrors: getEnvInt("VERIFY_MAX_TRANSPORT_ERRORS", d.MaxTransportErrors),
		},
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		ReapSchedule:   getEnvOrDefault("SESSION_REAP_SCHEDULE", "@every 1m"),
	}, nil
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func LoadAuthConfig() (*AuthConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not configured")
	}
	return &AuthConfig{
		JWTSecret: secret,
		TokenTTL:  getEnvDuration("JWT_TTL", 24*time.Hour),
	}, nil
}

type ReceiptConfig struct {
	SchoolName string
	ArchiveDir string
}

func LoadReceiptConfig() (*ReceiptConfig, error) {
	return &ReceiptConfig{
		SchoolName: getEnvOrDefault("SCHOOL_NAME", "School Name Academy"),
		ArchiveDir: os.Getenv("RECEIPT_ARCHIVE_DIR"),
	}, nil
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&models.Role{}, &models.User{}, &models.Student{}, &models.Payment{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// InitStore opens the configured store and loads the demo dataset when asked to.
func InitStore(cfg *Config) (store.Store, error) {
	var data *store.DemoData
	if cfg.SeedDemo {
		var err error
		if data, err = store.NewDemoData(); err != nil {
			return nil, err
		}
	}

	if cfg.StoreDriver == StoreDriverMemory {
		s := store.NewMemoryStore()
		if data != nil {
			if err := s.Seed(context.Background(), data); err != nil {
				return nil, fmt.Errorf("failed to seed memory store: %w", err)
			}
		}
		log.Println("Using in-memory store")
		return s, nil
	}

	db, err := InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	roles := seedRoles(db)
	if data != nil {
		seedDemo(db, roles, data)
	}
	return store.NewGormStore(db), nil
}

func seedRoles(db *gorm.DB) map[string]models.Role {
	roles := map[string]models.Role{}
	for _, name := range []string{models.RoleParent, models.RoleStudent, models.RoleAdmin} {
		role := models.Role{Name: name}
		if err := db.Where("name = ?", name).FirstOrCreate(&role).Error; err != nil {
			log.Printf("Failed to seed role %s: %v", name, err)
			continue
		}
		roles[name] = role
	}
	return roles
}

// seedDemo inserts the demo users and students once; an existing account
// with the same email means the dataset is already there.
func seedDemo(db *gorm.DB, roles map[string]models.Role, data *store.DemoData) {
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", data.Users[0].Email).Count(&count).Error; err != nil || count > 0 {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, u := range data.Users {
			role, ok := roles[u.Role.Name]
			if !ok {
				return fmt.Errorf("role %s missing", u.Role.Name)
			}
			u.RoleID = role.ID
			u.Role = models.Role{}
			if err := tx.Omit("Role").Create(&u).Error; err != nil {
				return err
			}
		}
		for _, s := range data.Students {
			if err := tx.Create(&s).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Failed to seed demo data: %v", err)
		return
	}
	log.Printf("Seeded %d demo users and %d students", len(data.Users), len(data.Students))
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
