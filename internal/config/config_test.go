package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"retreat/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("RETREAT_JWT_SECRET", "from-env")

	yamlContent := `
database:
  path: "test.db"
members:
  jwt_secret: "${RETREAT_JWT_SECRET}"
schedule:
  open_time: "08:00"
notify:
  managers: [101, 202]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Members.JWTSecret != "from-env" {
		t.Errorf("expected jwt secret from env, got %q", cfg.Members.JWTSecret)
	}
	if cfg.Schedule.OpenTime != "08:00" || cfg.Schedule.CloseTime != models.DefaultCloseTime {
		t.Errorf("unexpected schedule bounds %s-%s", cfg.Schedule.OpenTime, cfg.Schedule.CloseTime)
	}
	if len(cfg.Notify.Managers) != 2 || cfg.Notify.Managers[1] != 202 {
		t.Errorf("expected 2 managers, got %v", cfg.Notify.Managers)
	}
}

func TestLoadConfig_WithDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("database:\n  path: \"${RETREAT_DB_PATH}\"\nmembers:\n  jwt_secret: s\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if err := os.WriteFile(".env", []byte("RETREAT_DB_PATH=from-dotenv.db\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	defer os.Remove(".env")
	t.Cleanup(func() { os.Unsetenv("RETREAT_DB_PATH") })

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.Path != "from-dotenv.db" {
		t.Errorf("expected database path from .env, got %q", cfg.Database.Path)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	cfg := Config{
		Database: DatabaseConfig{Path: "path"},
		Members:  MembersConfig{JWTSecret: "secret"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Members.JWTSecret = "" }, wantErr: true},
		{name: "inverted hours", mutate: func(c *Config) { c.Schedule.OpenTime = "22:00"; c.Schedule.CloseTime = "08:00" }, wantErr: true},
		{name: "bad clock", mutate: func(c *Config) { c.Schedule.OpenTime = "8am" }, wantErr: true},
		{name: "stripe without key", mutate: func(c *Config) { c.Payments.Provider = "stripe" }, wantErr: true},
		{name: "stripe with key", mutate: func(c *Config) { c.Payments.Provider = "stripe"; c.Payments.StripeSecretKey = "sk_test" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Payments.Provider = "paypal" }, wantErr: true},
		{name: "bad currency", mutate: func(c *Config) { c.Payments.Currency = "dollars" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Schedule.MaxBookingDays != models.DefaultMaxBookingDays {
		t.Errorf("expected max booking days %d, got %d", models.DefaultMaxBookingDays, cfg.Schedule.MaxBookingDays)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("expected idempotency ttl 24h, got %s", cfg.Idempotency.TTL)
	}
	if cfg.Payments.Provider != "static" || cfg.Payments.Currency != "usd" {
		t.Errorf("unexpected payments defaults %+v", cfg.Payments)
	}
	if cfg.Members.Issuer != "retreat" {
		t.Errorf("expected issuer to default to app name, got %q", cfg.Members.Issuer)
	}

	open, closeAt, err := cfg.Schedule.Bounds()
	if err != nil {
		t.Fatalf("Bounds() error = %v", err)
	}
	if open != models.MustClock("06:00") || closeAt != models.MustClock("23:00") {
		t.Errorf("unexpected bounds %s-%s", open, closeAt)
	}
}

func TestScheduleLocation(t *testing.T) {
	if loc := (ScheduleConfig{}).Location(); loc != time.UTC {
		t.Errorf("expected UTC by default, got %s", loc)
	}
	if loc := (ScheduleConfig{Timezone: "Not/AZone"}).Location(); loc != time.UTC {
		t.Errorf("expected UTC fallback, got %s", loc)
	}
}

func TestValidateResources(t *testing.T) {
	tests := []struct {
		name      string
		resources []models.Resource
		wantErr   bool
	}{
		{
			name: "Valid resources",
			resources: []models.Resource{
				{ID: 1, Name: "Studio A", Kind: models.KindRoom, HourlyRate: 5000},
				{ID: 2, Name: "Grand Piano", Kind: models.KindInstrument},
			},
		},
		{
			name: "Duplicate ID",
			resources: []models.Resource{
				{ID: 1, Name: "Studio A", Kind: models.KindRoom},
				{ID: 1, Name: "Studio B", Kind: models.KindRoom},
			},
			wantErr: true,
		},
		{
			name:      "ID 0",
			resources: []models.Resource{{ID: 0, Name: "Studio A", Kind: models.KindRoom}},
			wantErr:   true,
		},
		{
			name:      "Unknown kind",
			resources: []models.Resource{{ID: 1, Name: "Bus", Kind: "vehicle"}},
			wantErr:   true,
		},
		{
			name:      "Negative rate",
			resources: []models.Resource{{ID: 1, Name: "Studio A", Kind: models.KindRoom, HourlyRate: -1}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResources(tt.resources)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResources() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
