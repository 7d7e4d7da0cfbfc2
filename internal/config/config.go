package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"retreat/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig         `yaml:"app"`
	Database      DatabaseConfig    `yaml:"database"`
	Redis         RedisConfig       `yaml:"redis"`
	Backup        BackupConfig      `yaml:"backup"`
	Monitoring    MonitoringConfig  `yaml:"monitoring"`
	Logging       LoggingConfig     `yaml:"logging"`
	API           APIConfig         `yaml:"api"`
	Schedule      ScheduleConfig    `yaml:"schedule"`
	Members       MembersConfig     `yaml:"members"`
	Payments      PaymentsConfig    `yaml:"payments"`
	Idempotency   IdempotencyConfig `yaml:"idempotency"`
	Notify        NotifyConfig      `yaml:"notify"`
	Exports       ExportConfig      `yaml:"exports"`
	Google        GoogleConfig      `yaml:"google"`
	ResourcesFile string            `yaml:"resources_file"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig         `yaml:"cors"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`

	// FormsPerHour ограничивает отправку публичных форм с одного адреса
	FormsPerHour int `yaml:"forms_per_hour"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAge         int      `yaml:"max_age"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type GoogleConfig struct {
	CredentialsFile          string `yaml:"credentials_file"`
	ReservationSpreadsheetID string `yaml:"reservations_spreadsheet_id"`
	FormsSpreadsheetID       string `yaml:"forms_spreadsheet_id"`
}

// ScheduleConfig задаёт рабочие часы и горизонт бронирования.
type ScheduleConfig struct {
	OpenTime       string `yaml:"open_time"`
	CloseTime      string `yaml:"close_time"`
	MaxBookingDays int    `yaml:"max_booking_days"`
	Timezone       string `yaml:"timezone"`
}

// Bounds parses the configured opening hours.
func (s ScheduleConfig) Bounds() (open, closeAt models.Clock, err error) {
	open, err = models.ParseClock(s.OpenTime)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule.open_time: %w", err)
	}
	closeAt, err = models.ParseClock(s.CloseTime)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule.close_time: %w", err)
	}
	if open >= closeAt {
		return 0, 0, errors.New("schedule.open_time must be before close_time")
	}
	return open, closeAt, nil
}

// Location returns the timezone used to decide what "today" is.
func (s ScheduleConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type MembersConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type PaymentsConfig struct {
	Provider        string `yaml:"provider"` // stripe | static
	StripeSecretKey string `yaml:"stripe_secret_key"`
	Currency        string `yaml:"currency"`
}

type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type NotifyConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	Managers      []int64 `yaml:"managers"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, _, err := c.Schedule.Bounds(); err != nil {
		return err
	}

	if c.Members.JWTSecret == "" {
		return errors.New("members.jwt_secret is required")
	}

	switch c.Payments.Provider {
	case "static":
	case "stripe":
		if c.Payments.StripeSecretKey == "" {
			return errors.New("payments.stripe_secret_key is required for stripe provider")
		}
	default:
		return fmt.Errorf("unknown payments provider %q", c.Payments.Provider)
	}

	if len(c.Payments.Currency) != 3 {
		return fmt.Errorf("payments.currency must be a 3-letter code, got %q", c.Payments.Currency)
	}

	return nil
}

// ValidateResources checks the resource seed list loaded from YAML.
func ValidateResources(resources []models.Resource) error {
	ids := make(map[int64]bool)
	for i := range resources {
		r := &resources[i]
		if r.ID == 0 {
			return fmt.Errorf("resource '%s' has invalid ID 0", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		if r.Name == "" {
			return fmt.Errorf("resource %d has empty name", r.ID)
		}
		if !models.ValidKind(r.Kind) {
			return fmt.Errorf("resource %d has unknown kind %q", r.ID, r.Kind)
		}
		if r.HourlyRate < 0 {
			return fmt.Errorf("resource %d has negative hourly rate", r.ID)
		}
		ids[r.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "retreat"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}
	if c.API.RateLimit.FormsPerHour == 0 {
		c.API.RateLimit.FormsPerHour = 30
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if c.API.CORS.MaxAge == 0 {
		c.API.CORS.MaxAge = 300
	}

	// Рабочий день и горизонт бронирования
	if c.Schedule.OpenTime == "" {
		c.Schedule.OpenTime = models.DefaultOpenTime
	}
	if c.Schedule.CloseTime == "" {
		c.Schedule.CloseTime = models.DefaultCloseTime
	}
	if c.Schedule.MaxBookingDays == 0 {
		c.Schedule.MaxBookingDays = models.DefaultMaxBookingDays
	}

	if c.Members.Issuer == "" {
		c.Members.Issuer = c.App.Name
	}
	if c.Members.TokenTTL == 0 {
		c.Members.TokenTTL = 24 * time.Hour
	}

	if c.Payments.Provider == "" {
		c.Payments.Provider = "static"
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "usd"
	}

	if c.Idempotency.TTL == 0 {
		c.Idempotency.TTL = time.Duration(models.DefaultIdempotencyTTL) * time.Second
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}

	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 28
	}

	if c.ResourcesFile == "" {
		c.ResourcesFile = "configs/resources.yaml"
	}
}
