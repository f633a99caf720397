// Package config loads the application configuration once at start-up.
// The resulting Config is passed by pointer into every constructor that
// needs it; nothing in the module reads the environment after Load returns.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the catalog service.
type Config struct {
	ServiceName string `validate:"required"`
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Upload      UploadConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Log         LogConfig
	Password    PasswordConfig
	Pagination  PaginationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `validate:"required"`
	Env             string        `validate:"required,oneof=development production test"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Driver          string `validate:"required,oneof=sqlite postgres memory"`
	DSN             string `validate:"required_unless=Driver memory"`
	MaxIdleConns    int    `validate:"gte=0"`
	MaxOpenConns    int    `validate:"gte=0"`
	ConnMaxLifetime time.Duration
	LogLevel        string `validate:"oneof=silent error warn info"`
	Seed            bool
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Key      string        `validate:"required,min=16"`
	Issuer   string        `validate:"required"`
	Audience string        `validate:"required"`
	TTL      time.Duration `validate:"gt=0"`
}

// UploadConfig holds the image upload policy.
type UploadConfig struct {
	Root     string `validate:"required"`
	Folder   string `validate:"required"`
	MaxBytes int64  `validate:"gt=0"`
}

// RedisConfig holds the listing cache settings. An empty Addr selects the
// in-process cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int           `validate:"gte=0"`
	TTL      time.Duration `validate:"gt=0"`
}

// RabbitMQConfig holds product event settings. An empty URL disables events.
type RabbitMQConfig struct {
	URL   string
	Queue string `validate:"required"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// PasswordConfig selects the password hashing scheme.
type PasswordConfig struct {
	Scheme string `validate:"oneof=hmac-sha512 bcrypt"`
}

// PaginationConfig holds listing limits. MaxLimit 0 disables the ceiling.
type PaginationConfig struct {
	MaxLimit int `validate:"gte=0"`
}

// BodyLimit is the maximum request body size accepted by the HTTP server.
// It leaves room above the upload limit for the other multipart fields so
// oversize images reach validation instead of being cut off by the server.
func (c *Config) BodyLimit() int {
	return int(c.Upload.MaxBytes) + 1<<20
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "catalog")
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "catalog.db")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("DB_SEED", false)

	v.SetDefault("JWT_ISSUER", "catalog")
	v.SetDefault("JWT_AUDIENCE", "catalog-clients")
	v.SetDefault("JWT_TTL", time.Hour)

	v.SetDefault("UPLOAD_ROOT", "wwwroot")
	v.SetDefault("UPLOAD_FOLDER", "products")
	v.SetDefault("UPLOAD_MAX_BYTES", 5<<20)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", 5*time.Minute)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_QUEUE", "product_events")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PASSWORD_SCHEME", "hmac-sha512")
	v.SetDefault("PAGINATION_MAX_LIMIT", 100)
}

// Load reads configuration from an optional .env file and the environment,
// then validates it.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServiceName: v.GetString("SERVICE_NAME"),
		Server: ServerConfig{
			Port:            v.GetString("APP_PORT"),
			Env:             v.GetString("APP_ENV"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("DB_DRIVER"),
			DSN:             v.GetString("DATABASE_DSN"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			LogLevel:        v.GetString("DB_LOG_LEVEL"),
			Seed:            v.GetBool("DB_SEED"),
		},
		JWT: JWTConfig{
			Key:      v.GetString("JWT_KEY"),
			Issuer:   v.GetString("JWT_ISSUER"),
			Audience: v.GetString("JWT_AUDIENCE"),
			TTL:      v.GetDuration("JWT_TTL"),
		},
		Upload: UploadConfig{
			Root:     v.GetString("UPLOAD_ROOT"),
			Folder:   v.GetString("UPLOAD_FOLDER"),
			MaxBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("CACHE_TTL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   v.GetString("RABBITMQ_URL"),
			Queue: v.GetString("RABBITMQ_QUEUE"),
		},
		Log:        LogConfig{Level: v.GetString("LOG_LEVEL")},
		Password:   PasswordConfig{Scheme: v.GetString("PASSWORD_SCHEME")},
		Pagination: PaginationConfig{MaxLimit: v.GetInt("PAGINATION_MAX_LIMIT")},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
