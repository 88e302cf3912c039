package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	sc := cfg.Services()
	if sc.LoyaltyTarget != 5 || sc.CodeTTL != 10*time.Minute || sc.RateLimitWindow != 30*time.Minute {
		t.Errorf("services config = %+v", sc)
	}
	if sc.VoucherValidity != 30*24*time.Hour || sc.FamilyQRMaxAge != 24*time.Hour {
		t.Errorf("validity windows = %+v", sc)
	}
	offs, err := cfg.ReminderOffsets()
	if err != nil || len(offs) != 2 || offs[0] != 72*time.Hour {
		t.Errorf("reminder offsets = %v, %v", offs, err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loyalty.yaml")
	content := `addr: ":9090"
database:
  path: /var/lib/loyalty.db
security:
  hmac_secret: file-secret-0123456789
loyalty:
  target: 6
  rate_limit_minutes: 45
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOYALTY_LOYALTY_TARGET", "8")
	t.Setenv("LOYALTY_SECURITY_STAFF_KEY", "desk-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Database.Path != "/var/lib/loyalty.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Loyalty.Target != 8 {
		t.Errorf("env should win over file: target = %d", cfg.Loyalty.Target)
	}
	if cfg.Loyalty.RateLimitMinutes != 45 {
		t.Errorf("rate limit = %d", cfg.Loyalty.RateLimitMinutes)
	}
	if cfg.Security.StaffKey != "desk-key" {
		t.Errorf("staff key = %q", cfg.Security.StaffKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "hmac_secret") {
		t.Errorf("expected hmac_secret error, got %v", err)
	}

	cfg.Security.HMACSecret = "0123456789abcdef"
	cfg.Loyalty.Target = 0
	cfg.Reminders.Offsets = []string{"soon"}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "loyalty.target") || !strings.Contains(err.Error(), "soon") {
		t.Errorf("expected target and offsets errors, got %v", err)
	}
}
