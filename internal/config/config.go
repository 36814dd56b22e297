package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/VideoTube/pkg/config"
)

// Media providers.
const (
	MediaCloudinary = "cloudinary"
	MediaS3         = "s3"
	MediaMemory     = "memory"
)

const minSecretLen = 32

// Config holds all configuration for the accounts service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort         int           `env:"HTTP_PORT" envDefault:"8000"`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	PprofEnabled     bool          `env:"PPROF_ENABLED" envDefault:"false"`
	PprofCIDRs       []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"videotube"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"videotube_secret"`
	PostgresDB       string        `env:"POSTGRES_DB" envDefault:"videotube"`
	PostgresSSL      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	SlowQuery        time.Duration `env:"POSTGRES_SLOW_QUERY" envDefault:"200ms"`

	// Redis
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockout     time.Duration `env:"LOGIN_LOCKOUT" envDefault:"15m"`

	// Kafka
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopicUsers string   `env:"KAFKA_TOPIC_USERS" envDefault:"videotube.user"`

	// Tokens
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:"change-this-access-token-secret"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET" envDefault:"change-this-refresh-token-secret"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"240h"`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"10"`

	// Media
	MediaProvider       string `env:"MEDIA_PROVIDER" envDefault:"cloudinary"`
	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	CloudinaryBaseURL   string `env:"CLOUDINARY_BASE_URL" envDefault:"https://api.cloudinary.com/v1_1"`
	S3Endpoint          string `env:"S3_ENDPOINT"`
	S3Region            string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket            string `env:"S3_BUCKET"`
	S3AccessKey         string `env:"S3_ACCESS_KEY"`
	S3SecretKey         string `env:"S3_SECRET_KEY"`
	S3PublicURL         string `env:"S3_PUBLIC_URL"`
	UploadTempDir       string `env:"UPLOAD_TEMP_DIR" envDefault:"./public/temp"`
	UploadMaxBytes      int64  `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"`

	// HTTP edge
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	CookieSecure       bool     `env:"COOKIE_SECURE" envDefault:"true"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load accounts config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks value ranges and, outside development, the token secrets.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		errs = append(errs, errors.New("token expiries must be positive"))
	}
	if c.LoginMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("LOGIN_MAX_ATTEMPTS must be at least 1, got %d", c.LoginMaxAttempts))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.UploadMaxBytes))
	}

	switch c.MediaProvider {
	case MediaCloudinary:
		if c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "" {
			errs = append(errs, errors.New("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required for the cloudinary provider"))
		}
	case MediaS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 provider"))
		}
	case MediaMemory:
		if !c.IsDevelopment() {
			errs = append(errs, fmt.Errorf("the memory media provider is not allowed in %q mode", c.Environment))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MEDIA_PROVIDER %q", c.MediaProvider))
	}

	// In non-development environments, require explicitly set, strong and distinct secrets.
	if !c.IsDevelopment() {
		for name, secret := range map[string]string{
			"ACCESS_TOKEN_SECRET":  c.AccessTokenSecret,
			"REFRESH_TOKEN_SECRET": c.RefreshTokenSecret,
		} {
			if len(secret) < minSecretLen {
				errs = append(errs, fmt.Errorf("%s must be at least %d characters long, got %d", name, minSecretLen, len(secret)))
			}
		}
		if c.AccessTokenSecret == c.RefreshTokenSecret {
			errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
		}
	}

	return errors.Join(errs...)
}
