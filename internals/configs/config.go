package configs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// Config is read from the process ENV (after .env is loaded) through cleanenv.
type Config struct {
	Env     string `env:"APP_ENV" env-default:"development"`
	Port    string `env:"PORT" env-default:"3000"`
	OrgName string `env:"ORG_NAME" env-default:"Noor Ul Fityan"`

	JWTSecret   string   `env:"JWT_SECRET"`
	CorsOrigins []string `env:"CORS_ORIGINS" env-separator:","`

	DB    DBConfig
	Mpesa MpesaConfig
	SMTP  SMTPConfig
	Kafka KafkaConfig
}

type DBConfig struct {
	User          string `env:"DB_USER"`
	Password      string `env:"DB_PASSWORD"`
	Host          string `env:"DB_HOST" env-default:"localhost"`
	Port          string `env:"DB_PORT" env-default:"5432"`
	Name          string `env:"DB_NAME"`
	SSLMode       string `env:"DB_SSLMODE" env-default:"require"`
	RunMigrations bool   `env:"DB_RUN_MIGRATIONS" env-default:"true"`
	SeedAdmins    string `env:"SEED_ADMINS_FILE"`
}

type MpesaConfig struct {
	ConsumerKey    string        `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `env:"MPESA_CONSUMER_SECRET"`
	Passkey        string        `env:"MPESA_PASSKEY"`
	Shortcode      string        `env:"MPESA_SHORTCODE" env-default:"254768209816"`
	CallbackURL    string        `env:"MPESA_CALLBACK_URL"`
	BaseURL        string        `env:"MPESA_BASE_URL" env-default:"https://sandbox.safaricom.co.ke"`
	Timeout        time.Duration `env:"MPESA_TIMEOUT" env-default:"20s"`
	// 0 = Timeout + 15s
	ClaimLease time.Duration `env:"MPESA_CLAIM_LEASE" env-default:"0s"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	Secure   bool   `env:"SMTP_SECURE" env-default:"false"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_DONATION_TOPIC" env-default:"donation-events"`
}

// DSN for the postgres drivers (gorm & migrate).
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=noorulfityan&options=-c statement_timeout=3000",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// EffectiveClaimLease never returns less than the gateway HTTP timeout plus a margin.
func (m MpesaConfig) EffectiveClaimLease() time.Duration {
	if m.ClaimLease > m.Timeout {
		return m.ClaimLease
	}
	return m.Timeout + 15*time.Second
}

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("[WARN] .env not found, using system ENV")
		} else {
			log.Println("[INFO] .env loaded")
		}
	} else {
		log.Println("[INFO] running in Railway, using system ENV")
	}
}

// MustLoad loads .env and reads Config, exiting when the ENV cannot be parsed.
func MustLoad() *Config {
	LoadEnv()

	cfg, err := Load()
	if err != nil {
		log.Fatalf("[ERROR] failed to read config: %v", err)
	}
	return cfg
}

func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	if cfg.JWTSecret == "" {
		log.Println("[WARN] JWT_SECRET is not set!")
	}
	if cfg.Mpesa.ConsumerKey == "" || cfg.Mpesa.ConsumerSecret == "" || cfg.Mpesa.Passkey == "" {
		log.Println("[WARN] M-Pesa credentials incomplete, STK push will fail")
	}
	if cfg.Mpesa.CallbackURL == "" {
		cfg.Mpesa.CallbackURL = fmt.Sprintf("http://localhost:%s/api/payments/mpesa/callback", cfg.Port)
	}
	return &cfg, nil
}

// =======================
// GORM LOGGER CUSTOM
// =======================
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewGormLogger(level gormLogger.LogLevel) gormLogger.Interface {
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      level,
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		log.Printf("[INFO] "+msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		log.Printf("[WARN] "+msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		log.Printf("[ERROR] "+msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	file := utils.FileWithLineNum()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= gormLogger.Error:
		log.Printf("[ERROR] %s | %v | %s | %d rows | %s", file, err, elapsed, rows, sql)
	case elapsed > l.SlowThreshold && l.LogLevel >= gormLogger.Warn:
		log.Printf("[SLOW SQL] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	case l.LogLevel >= gormLogger.Info:
		log.Printf("[QUERY] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	}
}
