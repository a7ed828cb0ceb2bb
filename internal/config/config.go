package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	SecretStoreFile     = "file"
	SecretStoreMemory   = "memory"
	SecretStoreRedis    = "redis"
	SecretStorePostgres = "postgres"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	BaseURL               string `env:"BUDDY_BASE_URL" envDefault:"http://localhost:8000"`
	AppIdentifier         string `env:"BUDDY_APP_ID" envDefault:"io.buddy.client"`
	RefreshWindowSeconds  int    `env:"REFRESH_WINDOW_SECONDS" envDefault:"30"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	SecretStore           string `env:"SECRET_STORE" envDefault:"file"`
	SecretStorePath       string `env:"SECRET_STORE_PATH" envDefault:""`
	RedisURL              string `env:"REDIS_URL"`
	DatabaseURL           string `env:"DATABASE_URL"`
	EncryptionKey         string `env:"ENCRYPTION_KEY"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.RefreshWindowSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// APIBaseURL is the versioned application API root, e.g. http://host/app-api/v1.
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/") + APIBasePath
}

// TokenKey is the secret-store key holding the persisted authorization token.
func (c *Config) TokenKey() string {
	return c.AppIdentifier + ".session.authorizationToken"
}

func (c *Config) Validate() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("BUDDY_BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if parsed.Scheme == "http" && parsed.Hostname() != "localhost" && parsed.Hostname() != "127.0.0.1" {
		log.Warn().Str("baseUrl", c.BaseURL).Msg("BUDDY_BASE_URL is not TLS: bearer tokens will travel in clear text")
	}

	if c.RefreshWindowSeconds < 0 {
		return fmt.Errorf("REFRESH_WINDOW_SECONDS must not be negative")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}

	switch c.SecretStore {
	case SecretStoreFile, SecretStoreMemory:
	case SecretStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SECRET_STORE=redis")
		}
	case SecretStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SECRET_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown SECRET_STORE %q (expected file, memory, redis or postgres)", c.SecretStore)
	}

	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes hex encoded (generate with: openssl rand -hex 32)")
		}
	} else if c.SecretStore == SecretStoreRedis || c.SecretStore == SecretStorePostgres {
		log.Warn().Str("store", c.SecretStore).Msg("ENCRYPTION_KEY is empty: tokens will be stored unencrypted on a shared backend")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

type GatewayConfig struct {
	Port                  int    `env:"GATEWAY_PORT" envDefault:"8000"`
	JWTSecret             string `env:"GATEWAY_JWT_SECRET" envDefault:"dev-secret-change-me"`
	AccessTokenTTLSeconds int    `env:"GATEWAY_ACCESS_TOKEN_TTL_SECONDS" envDefault:"900"`
	SeedEmail             string `env:"GATEWAY_SEED_EMAIL"`
	SeedPasswordHash      string `env:"GATEWAY_SEED_PASSWORD_HASH"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *GatewayConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *GatewayConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLSeconds) * time.Second
}

func (c *GatewayConfig) Validate(isProduction bool) error {
	if c.SeedPasswordHash != "" {
		if !strings.HasPrefix(c.SeedPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.SeedPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.SeedPasswordHash, "$2y$") {
			return fmt.Errorf("GATEWAY_SEED_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
		if c.SeedEmail == "" {
			return fmt.Errorf("GATEWAY_SEED_EMAIL is required with GATEWAY_SEED_PASSWORD_HASH")
		}
	}
	if c.AccessTokenTTLSeconds <= 0 {
		return fmt.Errorf("GATEWAY_ACCESS_TOKEN_TTL_SECONDS must be positive")
	}

	if isProduction {
		if err := validateSecret("GATEWAY_JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func LoadGateway() (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway config: %w", err)
	}
	return &cfg, nil
}
