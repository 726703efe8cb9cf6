package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string
	DatabaseURL    string
	JWTSecret      string
	AllowedOrigins []string
	DemoMode       bool
	LogLevel       string
	LogJSON        bool

	AppURL        string
	WebhookSecret string
	CronSecret    string

	MonzoClientID     string
	MonzoClientSecret string
	MonzoAPIURL       string

	PlaidClientID string
	PlaidSecret   string
	PlaidEnv      string

	SyncInterval  time.Duration
	SyncLookback  time.Duration
	PollLookback  time.Duration
	RemoteTimeout time.Duration

	RotaAnchor    civil.Date
	RotaOnDays    int
	RotaOffDays   int
	ShiftHours    decimal.Decimal
	HourlyRate    decimal.Decimal
	DeductionRate decimal.Decimal

	// Pockets the daily digests report on.
	EssentialsPocket string
	FunPocket        string

	WebhookArchiveBucket string
}

func (c Config) MonzoEnabled() bool {
	return c.MonzoClientID != "" && c.MonzoClientSecret != ""
}

func (c Config) PlaidEnabled() bool {
	return c.PlaidClientID != "" && c.PlaidSecret != ""
}

func Load() (Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		DemoMode:       getBool("DEMO_MODE", false, &errs),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogJSON:        getBool("LOG_JSON", false, &errs),

		AppURL:        strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		CronSecret:    getEnv("CRON_SECRET", ""),

		MonzoClientID:     getEnv("MONZO_CLIENT_ID", ""),
		MonzoClientSecret: getEnv("MONZO_CLIENT_SECRET", ""),
		MonzoAPIURL:       getEnv("MONZO_API_URL", "https://api.monzo.com"),

		PlaidClientID: getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:   getEnv("PLAID_SECRET", ""),
		PlaidEnv:      getEnv("PLAID_ENV", "sandbox"),

		SyncInterval:  getDuration("SYNC_INTERVAL", 15*time.Minute, &errs),
		SyncLookback:  time.Duration(getInt("SYNC_LOOKBACK_DAYS", 30, &errs)) * 24 * time.Hour,
		PollLookback:  getDuration("POLL_LOOKBACK", 2*time.Hour, &errs),
		RemoteTimeout: getDuration("REMOTE_TIMEOUT", 15*time.Second, &errs),

		RotaAnchor:    getDate("ROTA_ANCHOR_DATE", civil.Date{Year: 2026, Month: time.February, Day: 23}, &errs),
		RotaOnDays:    getInt("ROTA_ON_DAYS", 3, &errs),
		RotaOffDays:   getInt("ROTA_OFF_DAYS", 3, &errs),
		ShiftHours:    getDecimal("SHIFT_HOURS", decimal.NewFromInt(12), &errs),
		HourlyRate:    getDecimal("HOURLY_RATE", decimal.RequireFromString("12.21"), &errs),
		DeductionRate: getDecimal("DEDUCTION_RATE", decimal.RequireFromString("0.2"), &errs),

		EssentialsPocket: getEnv("DIGEST_ESSENTIALS_POCKET", "Daily Essentials"),
		FunPocket:        getEnv("DIGEST_FUN_POCKET", "Fun"),

		WebhookArchiveBucket: getEnv("WEBHOOK_ARCHIVE_BUCKET", ""),
	}

	if cfg.DatabaseURL == "" && !cfg.DemoMode {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.RotaOnDays < 1 || cfg.RotaOffDays < 0 {
		errs = append(errs, errors.New("ROTA_ON_DAYS must be at least 1 and ROTA_OFF_DAYS not negative"))
	}
	if cfg.DeductionRate.IsNegative() || cfg.DeductionRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("DEDUCTION_RATE must be between 0 and 1"))
	}

	return cfg, errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool, errs *[]error) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getInt(key string, fallback int, errs *[]error) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getDate(key string, fallback civil.Date, errs *[]error) civil.Date {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal, errs *[]error) decimal.Decimal {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
