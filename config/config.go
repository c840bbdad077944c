package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds the application configuration
type AppConfig struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	DBURL              string        `mapstructure:"DB_URL"`
	DBMaxOpenConns     int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns     int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBLockTimeout      time.Duration `mapstructure:"DB_LOCK_TIMEOUT"`
	DBStatementTimeout time.Duration `mapstructure:"DB_STATEMENT_TIMEOUT"`

	RedisAddress      string        `mapstructure:"REDIS_URL"`
	RedisPoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	RedisMinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	RedisDialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	RedisReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	RedisMaxRetries   int           `mapstructure:"REDIS_MAX_RETRIES"`

	SymmetricKey string        `mapstructure:"SYMMETRIC_KEY"`
	TokenExpiry  time.Duration `mapstructure:"TOKEN_EXPIRY"`
	OTPTTL       time.Duration `mapstructure:"OTP_TTL"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	Timezone            string        `mapstructure:"TIMEZONE"`
	SlotTimes           []string      `mapstructure:"SLOT_TIMES"`
	SlotDuration        time.Duration `mapstructure:"SLOT_DURATION"`
	HorizonDays         int           `mapstructure:"HORIZON_DAYS"`
	BookingWindowDays   int           `mapstructure:"BOOKING_WINDOW_DAYS"`
	GenerationInterval  time.Duration `mapstructure:"GENERATION_INTERVAL"`
	ReminderTime        string        `mapstructure:"REMINDER_TIME"`
	AvailableSlotsTTL   time.Duration `mapstructure:"AVAILABLE_SLOTS_CACHE_TTL"`
	SchedulerLockExpiry time.Duration `mapstructure:"SCHEDULER_LOCK_EXPIRY"`
}

var envKeys = []string{
	"PORT", "ENV",
	"DB_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_LOCK_TIMEOUT", "DB_STATEMENT_TIMEOUT",
	"REDIS_URL", "REDIS_POOL_SIZE", "REDIS_MIN_IDLE_CONNS", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_MAX_RETRIES",
	"SYMMETRIC_KEY", "TOKEN_EXPIRY", "OTP_TTL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TIMEZONE", "SLOT_TIMES", "SLOT_DURATION", "HORIZON_DAYS", "BOOKING_WINDOW_DAYS", "GENERATION_INTERVAL", "REMINDER_TIME",
	"AVAILABLE_SLOTS_CACHE_TTL", "SCHEDULER_LOCK_EXPIRY",
}

// DefaultSlotTimes is the published workday: four morning hours, a lunch gap at 13:00, four afternoon hours.
var DefaultSlotTimes = []string{
	"09:00:00", "10:00:00", "11:00:00", "12:00:00",
	"14:00:00", "15:00:00", "16:00:00", "17:00:00",
}

// Load reads configuration from the environment, after loading an optional .env file.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8930")
	v.SetDefault("ENV", "production")
	v.SetDefault("DB_MAX_OPEN_CONNS", 40)
	v.SetDefault("DB_MAX_IDLE_CONNS", 20)
	v.SetDefault("DB_LOCK_TIMEOUT", "5s")
	v.SetDefault("DB_STATEMENT_TIMEOUT", "15s")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "30s")
	v.SetDefault("REDIS_READ_TIMEOUT", "10s")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("TOKEN_EXPIRY", "1h")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 15)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("SLOT_TIMES", strings.Join(DefaultSlotTimes, ","))
	v.SetDefault("SLOT_DURATION", "1h")
	v.SetDefault("HORIZON_DAYS", 7)
	v.SetDefault("BOOKING_WINDOW_DAYS", 90)
	v.SetDefault("GENERATION_INTERVAL", "24h")
	v.SetDefault("REMINDER_TIME", "08:00")
	v.SetDefault("AVAILABLE_SLOTS_CACHE_TTL", "1m")
	v.SetDefault("SCHEDULER_LOCK_EXPIRY", "10m")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma separated lists arrive as one string from the environment.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.SlotTimes = splitList(v.GetString("SLOT_TIMES"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the values the server cannot start without are present and well formed.
func (c *AppConfig) Validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("missing DB_URL environment variable")
	}
	if c.RedisAddress == "" {
		return fmt.Errorf("missing REDIS_URL environment variable")
	}
	if len(c.SymmetricKey) != 32 {
		return fmt.Errorf("SYMMETRIC_KEY must be 32 bytes long, got %d", len(c.SymmetricKey))
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if len(c.SlotTimes) == 0 {
		return fmt.Errorf("SLOT_TIMES must list at least one start time")
	}
	for _, t := range c.SlotTimes {
		if _, err := time.Parse("15:04:05", t); err != nil {
			return fmt.Errorf("invalid SLOT_TIMES entry %q: expected HH:MM:SS", t)
		}
	}
	if c.SlotDuration <= 0 {
		return fmt.Errorf("SLOT_DURATION must be positive")
	}
	if c.HorizonDays <= 0 {
		return fmt.Errorf("HORIZON_DAYS must be positive")
	}
	if c.BookingWindowDays < c.HorizonDays {
		return fmt.Errorf("BOOKING_WINDOW_DAYS must be at least HORIZON_DAYS (%d)", c.HorizonDays)
	}
	if _, _, err := c.ReminderClock(); err != nil {
		return err
	}
	if c.DBLockTimeout <= 0 || c.DBStatementTimeout <= 0 {
		return fmt.Errorf("DB_LOCK_TIMEOUT and DB_STATEMENT_TIMEOUT must be bounded positive durations")
	}
	return nil
}

// IsDev reports whether the server runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}

// Location returns the time zone used for "today" and the reminder wall clock.
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ReminderClock parses REMINDER_TIME (HH:MM) into hour and minute.
func (c *AppConfig) ReminderClock() (int, int, error) {
	t, err := time.Parse("15:04", c.ReminderTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid REMINDER_TIME %q: expected HH:MM", c.ReminderTime)
	}
	return t.Hour(), t.Minute(), nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
