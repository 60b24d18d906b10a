package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/bloggers/internal/models"
)

// Config represents the runtime configuration for the bloggers backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds the public auth endpoints per client and route.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported stores.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
	Mongo    MongoConfig  `mapstructure:"mongo"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MongoConfig holds document store connection options.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Address   string        `mapstructure:"address"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TLS       bool          `mapstructure:"tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT          JWTSettings          `mapstructure:"jwt"`
	Registration RegistrationSettings `mapstructure:"registration"`
	Password     PasswordSettings     `mapstructure:"password"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// RegistrationSettings tunes the registration workflow.
type RegistrationSettings struct {
	CodeLength           int           `mapstructure:"code_length"`
	CodeExpiry           time.Duration `mapstructure:"code_expiry"`
	DispatchTimeout      time.Duration `mapstructure:"dispatch_timeout"`
	CompensationAttempts int           `mapstructure:"compensation_attempts"`
	CompensationBackoff  time.Duration `mapstructure:"compensation_backoff"`
}

// PasswordSettings selects the hash used for new accounts.
type PasswordSettings struct {
	Algorithm string       `mapstructure:"algorithm"`
	Argon2    Argon2Config `mapstructure:"argon2"`
}

// Argon2Config mirrors the argon2id cost parameters.
type Argon2Config struct {
	Time    uint32 `mapstructure:"time"`
	Memory  uint32 `mapstructure:"memory_kib"`
	Threads uint8  `mapstructure:"threads"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP            SMTPConfig `mapstructure:"smtp"`
	ConfirmationURL string     `mapstructure:"confirmation_url"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the purge of abandoned registrations.
type MaintenanceConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Schedule             string        `mapstructure:"schedule"`
	UnconfirmedRetention time.Duration `mapstructure:"unconfirmed_retention"`
}

// LoggingConfig configures the global zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadDotEnv exports variables from the given .env files (default ".env") into the
// process environment. Missing files are ignored and variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("BLOGGERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "mongo", "mongodb":
		if strings.TrimSpace(c.Database.Mongo.URI) == "" {
			return errors.New("config: database.mongo.uri is required for the mongo driver")
		}
	case "sqlite", "postgres", "postgresql", "mysql", "mariadb":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}

	switch strings.ToLower(c.Auth.Password.Algorithm) {
	case "", "bcrypt", "argon2id":
	default:
		return fmt.Errorf("config: unsupported auth.password.algorithm %q", c.Auth.Password.Algorithm)
	}

	if n := c.Auth.Registration.CodeLength; n < 0 || n > models.MaxConfirmationCodeLength {
		return fmt.Errorf("config: auth.registration.code_length must be between 0 and %d", models.MaxConfirmationCodeLength)
	}
	return nil
}

// UsesMongo reports whether the document store backs the user directory.
func (c DatabaseConfig) UsesMongo() bool {
	driver := strings.ToLower(c.Driver)
	return driver == "mongo" || driver == "mongodb"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit.requests", 5)
	v.SetDefault("server.rate_limit.window", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/bloggers.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.mongo.uri", "")
	v.SetDefault("database.mongo.database", "bloggers")
	v.SetDefault("database.mongo.connect_timeout", "10s")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.key_prefix", "bloggers:")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "bloggers")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.registration.code_length", 6)
	v.SetDefault("auth.registration.code_expiry", "24h")
	v.SetDefault("auth.registration.dispatch_timeout", "15s")
	v.SetDefault("auth.registration.compensation_attempts", 3)
	v.SetDefault("auth.registration.compensation_backoff", "200ms")
	v.SetDefault("auth.password.algorithm", "bcrypt")
	v.SetDefault("auth.password.argon2.time", 3)
	v.SetDefault("auth.password.argon2.memory_kib", 64*1024)
	v.SetDefault("auth.password.argon2.threads", 2)

	v.SetDefault("email.confirmation_url", "http://localhost:3000/confirm-registration")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.from", "")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.unconfirmed_retention", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
