package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment overrides. SITEGEN_SERVER__PORT maps to server.port.
const EnvPrefix = "SITEGEN_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Drafts    DraftsConfig    `koanf:"drafts"`
	Firebase  FirebaseConfig  `koanf:"firebase"`
	Storage   StorageConfig   `koanf:"storage"`
	Vercel    VercelConfig    `koanf:"vercel"`
	Stripe    StripeConfig    `koanf:"stripe"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Content   ContentConfig   `koanf:"content"`
	Publish   PublishConfig   `koanf:"publish"`
	Log       LogConfig       `koanf:"log"`
	App       AppConfig       `koanf:"app"`
}

type ServerConfig struct {
	Port           string   `koanf:"port" validate:"required"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type DatabaseConfig struct {
	// DSN takes precedence over the discrete fields when set.
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// DraftsConfig configures the device-local draft store used by sitectl.
type DraftsConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

type FirebaseConfig struct {
	CredentialsPath string `koanf:"credentials_path"`
}

type StorageConfig struct {
	Provider string `koanf:"provider" validate:"omitempty,oneof=gcs s3"`
	Bucket   string `koanf:"bucket"`
	// GCS only.
	CredentialsJSON string `koanf:"credentials_json"`
	// S3 only. Static keys are optional; the default AWS chain is used otherwise.
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	PublicBaseURL   string `koanf:"public_base_url"`
}

type VercelConfig struct {
	Token   string `koanf:"token"`
	BaseURL string `koanf:"base_url" validate:"required,url"`
	TeamID  string `koanf:"team_id"`
}

type StripeConfig struct {
	SecretKey string `koanf:"secret_key"`
	BaseURL   string `koanf:"base_url" validate:"required,url"`
}

type AnalyticsConfig struct {
	PixelID     string `koanf:"pixel_id"`
	AccessToken string `koanf:"access_token"`
	BaseURL     string `koanf:"base_url" validate:"required,url"`
	SourceURL   string `koanf:"source_url"`
}

type ContentConfig struct {
	BaseURL string `koanf:"base_url"`
}

type PublishConfig struct {
	ClaimTicks     int           `koanf:"claim_ticks" validate:"gte=0"`
	RepublishTicks int           `koanf:"republish_ticks" validate:"gte=0"`
	TickInterval   time.Duration `koanf:"tick_interval"`
	TaskTimeout    time.Duration `koanf:"task_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	File  string `koanf:"file"`
}

type AppConfig struct {
	Environment string `koanf:"environment"`
	Version     string `koanf:"version"`
	ServiceName string `koanf:"service_name"`
}

// Defaults returns the configuration used when no file or env override is present.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "sitegen",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Drafts: DraftsConfig{
			SQLitePath: "drafts.db",
		},
		Storage: StorageConfig{
			Provider: "gcs",
		},
		Vercel: VercelConfig{
			BaseURL: "https://api.vercel.com",
		},
		Stripe: StripeConfig{
			BaseURL: "https://api.stripe.com",
		},
		Analytics: AnalyticsConfig{
			BaseURL:   "https://graph.facebook.com/v21.0",
			SourceURL: "https://www.aibarber.org/",
		},
		Publish: PublishConfig{
			ClaimTicks:     15,
			RepublishTicks: 3,
			TickInterval:   time.Second,
			TaskTimeout:    30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		App: AppConfig{
			Environment: "development",
			Version:     "1.0.0",
			ServiceName: "site-backend",
		},
	}
}

// Load merges defaults, an optional YAML file named by SITEGEN_CONFIG, and
// SITEGEN_-prefixed environment variables.
func Load() (*Config, error) {
	// .env is optional; production injects the environment directly.
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := os.Getenv("SITEGEN_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.host or database.dsn is required")
	}
	return nil
}

// PostgresDSN renders the key/value DSN understood by both lib/pq and pgx.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslmode,
	)
}

// Secrets lists pointers to every field that may hold a vault: reference.
func (c *Config) Secrets() []*string {
	return []*string{
		&c.Database.Password,
		&c.Database.DSN,
		&c.Redis.Password,
		&c.Storage.CredentialsJSON,
		&c.Storage.SecretAccessKey,
		&c.Vercel.Token,
		&c.Stripe.SecretKey,
		&c.Analytics.AccessToken,
	}
}
