// Package config loads server and CLI settings: built-in defaults, then an
// optional YAML file, then LOYALTY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teddyfriends/loyalty/internal/services"
	"github.com/teddyfriends/loyalty/internal/tracing"
)

const EnvPrefix = "LOYALTY"

type Config struct {
	Addr          string          `mapstructure:"addr"`
	PublicBaseURL string          `mapstructure:"public_base_url"`
	Database      DatabaseConfig  `mapstructure:"database"`
	Security      SecurityConfig  `mapstructure:"security"`
	Loyalty       LoyaltyConfig   `mapstructure:"loyalty"`
	Redis         RedisConfig     `mapstructure:"redis"`
	Session       SessionConfig   `mapstructure:"session"`
	Twilio        TwilioConfig    `mapstructure:"twilio"`
	WhatsApp      WhatsAppConfig  `mapstructure:"whatsapp"`
	Tracing       TracingConfig   `mapstructure:"tracing"`
	Sweeper       SweeperConfig   `mapstructure:"sweeper"`
	Reminders     RemindersConfig `mapstructure:"reminders"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SecurityConfig struct {
	HMACSecret     string   `mapstructure:"hmac_secret"`
	// StaffKey guards /api; empty disables the check (development only).
	StaffKey       string   `mapstructure:"staff_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoyaltyConfig struct {
	Target                 int `mapstructure:"target"`
	VoucherValidDays       int `mapstructure:"voucher_valid_days"`
	CodeTTLMinutes         int `mapstructure:"code_ttl_minutes"`
	RateLimitMinutes       int `mapstructure:"rate_limit_minutes"`
	FamilyQRMaxAgeHours    int `mapstructure:"family_qr_max_age_hours"`
	VoucherQRMaxAgeDays    int `mapstructure:"voucher_qr_max_age_days"`
	UsedCodeRetentionHours int `mapstructure:"used_code_retention_hours"`
}

type RedisConfig struct {
	// Addr empty keeps sessions in process memory.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	BaseURL    string `mapstructure:"base_url"`
}

type WhatsAppConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Environment string `mapstructure:"environment"`
}

type SweeperConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

type RemindersConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	// Offsets before voucher expiry, as Go durations ("72h", "24h").
	Offsets []string `mapstructure:"offsets"`
}

func setDefaults(v *viper.Viper) {
	d := services.DefaultConfig()
	v.SetDefault("addr", ":8080")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("database.path", "loyalty.db")
	v.SetDefault("security.hmac_secret", "")
	v.SetDefault("security.staff_key", "")
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("loyalty.target", d.LoyaltyTarget)
	v.SetDefault("loyalty.voucher_valid_days", int(d.VoucherValidity/(24*time.Hour)))
	v.SetDefault("loyalty.code_ttl_minutes", int(d.CodeTTL/time.Minute))
	v.SetDefault("loyalty.rate_limit_minutes", int(d.RateLimitWindow/time.Minute))
	v.SetDefault("loyalty.family_qr_max_age_hours", int(d.FamilyQRMaxAge/time.Hour))
	v.SetDefault("loyalty.voucher_qr_max_age_days", int(d.VoucherQRMaxAge/(24*time.Hour)))
	v.SetDefault("loyalty.used_code_retention_hours", int(d.UsedCodeRetention/time.Hour))
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.base_url", "https://api.twilio.com")
	v.SetDefault("whatsapp.webhook_secret", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("sweeper.interval_minutes", 15)
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.offsets", []string{"72h", "24h"})
}

// Load reads the configuration. path may be empty; a missing file named
// explicitly is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Security.HMACSecret) < 16 {
		errs = append(errs, errors.New("security.hmac_secret must be at least 16 characters"))
	}
	l := c.Loyalty
	for name, n := range map[string]int{
		"loyalty.target":                    l.Target,
		"loyalty.voucher_valid_days":        l.VoucherValidDays,
		"loyalty.code_ttl_minutes":          l.CodeTTLMinutes,
		"loyalty.rate_limit_minutes":        l.RateLimitMinutes,
		"loyalty.family_qr_max_age_hours":   l.FamilyQRMaxAgeHours,
		"loyalty.voucher_qr_max_age_days":   l.VoucherQRMaxAgeDays,
		"loyalty.used_code_retention_hours": l.UsedCodeRetentionHours,
		"session.ttl_minutes":               c.Session.TTLMinutes,
		"sweeper.interval_minutes":          c.Sweeper.IntervalMinutes,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if _, err := c.ReminderOffsets(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Services maps the loyalty section onto the service policy.
func (c *Config) Services() services.Config {
	l := c.Loyalty
	day := 24 * time.Hour
	return services.Config{
		LoyaltyTarget:     l.Target,
		VoucherValidity:   time.Duration(l.VoucherValidDays) * day,
		CodeTTL:           time.Duration(l.CodeTTLMinutes) * time.Minute,
		RateLimitWindow:   time.Duration(l.RateLimitMinutes) * time.Minute,
		FamilyQRMaxAge:    time.Duration(l.FamilyQRMaxAgeHours) * time.Hour,
		VoucherQRMaxAge:   time.Duration(l.VoucherQRMaxAgeDays) * day,
		UsedCodeRetention: time.Duration(l.UsedCodeRetentionHours) * time.Hour,
	}
}

func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		ServiceName: "teddy-loyalty",
		Environment: c.Tracing.Environment,
	}
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalMinutes) * time.Minute
}

func (c *Config) ReminderOffsets() ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(c.Reminders.Offsets))
	for _, s := range c.Reminders.Offsets {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("reminders.offsets: invalid duration %q", s)
		}
		out = append(out, d)
	}
	return out, nil
}
