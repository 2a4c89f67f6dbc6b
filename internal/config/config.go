package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Record source kinds accepted by SOURCE.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
	SourceS3       = "s3"
	SourceMinio    = "minio"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	Source   string `mapstructure:"SOURCE"`
	DataFile string `mapstructure:"DATA_FILE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	SQLitePath string `mapstructure:"SQLITE_PATH"`

	S3Bucket string `mapstructure:"S3_BUCKET"`
	S3Key    string `mapstructure:"S3_KEY"`
	S3Region string `mapstructure:"S3_REGION"`

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioObject    string `mapstructure:"MINIO_OBJECT"`

	CollationLocale string   `mapstructure:"COLLATION_LOCALE"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "REQUEST_TIMEOUT",
	"SOURCE", "DATA_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SQLITE_PATH",
	"S3_BUCKET", "S3_KEY", "S3_REGION",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL", "MINIO_BUCKET", "MINIO_OBJECT",
	"COLLATION_LOCALE", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. The result is not validated; call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("SOURCE", SourceFile)
	v.SetDefault("DATA_FILE", "data/data.json")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("COLLATION_LOCALE", "en")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))

	return cfg, nil
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer token authentication is configured.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != ""
}

// Locale parses COLLATION_LOCALE.
func (c *Config) Locale() (language.Tag, error) {
	tag, err := language.Parse(c.CollationLocale)
	if err != nil {
		return language.Und, fmt.Errorf("COLLATION_LOCALE %q: %w", c.CollationLocale, err)
	}
	return tag, nil
}

// Level parses LOG_LEVEL. An empty value means info.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Validate checks that the settings required by the selected record source
// are present and that the locale, log level and limits parse.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceFile:
		if c.DataFile == "" {
			return fmt.Errorf("DATA_FILE is required when SOURCE is %q", c.Source)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SOURCE is %q", c.Source)
		}
		if c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
		}
	case SourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when SOURCE is %q", c.Source)
		}
	case SourceS3:
		if c.S3Bucket == "" || c.S3Key == "" {
			return fmt.Errorf("S3_BUCKET and S3_KEY are required when SOURCE is %q", c.Source)
		}
	case SourceMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" || c.MinioObject == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_BUCKET and MINIO_OBJECT are required when SOURCE is %q", c.Source)
		}
	default:
		return fmt.Errorf("SOURCE must be one of file, postgres, sqlite, s3, minio; got %q", c.Source)
	}

	if _, err := c.Locale(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %v", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled, got %d", c.RateLimitBurst)
	}

	if c.IsProduction() && c.AuthIssuer != "" && !c.AuthEnabled() {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when AUTH_ISSUER is configured")
	}

	return nil
}
