// Package config resolves the YAML config file, .env files and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvPort            = "PORT"
	EnvFrontendURL     = "FRONTEND_URL"
	EnvEncryptionKey   = "ENCRYPTION_KEY"
	EnvProviderTimeout = "PROVIDER_TIMEOUT"
	EnvRedisAddr       = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadDotEnv loads .env from the working directory and next to configPath.
// Variables already present in the environment are never overridden.
func LoadDotEnv(configPath string) []string {
	candidates := []string{".env"}
	if dir := strings.TrimSpace(filepath.Dir(configPath)); dir != "" && dir != "." {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	loaded := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, errAbs := filepath.Abs(candidate)
		if errAbs != nil {
			abs = candidate
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if _, errStat := os.Stat(abs); errStat != nil {
			continue
		}
		if errLoad := godotenv.Load(abs); errLoad == nil {
			loaded = append(loaded, abs)
		}
	}
	return loaded
}

// Server defaults.
const (
	DefaultPort            = 3001
	DefaultFrontendURL     = "http://localhost:3000"
	DefaultProviderTimeout = 60 * time.Second
)

// RedisConfig is the fallback Redis endpoint for the rate limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ModelReferenceSyncConfig controls the price reference syncer.
type ModelReferenceSyncConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               int                      `yaml:"port"`
	FrontendURL        string                   `yaml:"frontend-url"`
	EncryptionKey      string                   `yaml:"encryption-key"`
	ProviderTimeout    time.Duration            `yaml:"provider-timeout"`
	Debug              bool                     `yaml:"debug"`
	Redis              RedisConfig              `yaml:"redis"`
	ModelReferenceSync ModelReferenceSyncConfig `yaml:"model-reference-sync"`
}

// ErrMissingEncryptionKey indicates no key is available for secrets at rest.
var ErrMissingEncryptionKey = errors.New("missing encryption key (set `encryption-key` in config file or ENCRYPTION_KEY)")

// LoadServerConfig loads server settings from the YAML config file and environment.
// A missing file yields defaults; a malformed file is an error.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	result := ServerConfig{}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return ServerConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
			return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvPort)); raw != "" {
		port, errParse := strconv.Atoi(raw)
		if errParse != nil {
			return ServerConfig{}, fmt.Errorf("invalid %s: %w", EnvPort, errParse)
		}
		result.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvFrontendURL)); v != "" {
		result.FrontendURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEncryptionKey)); v != "" {
		result.EncryptionKey = v
	}
	if raw := strings.TrimSpace(os.Getenv(EnvProviderTimeout)); raw != "" {
		timeout, errParse := time.ParseDuration(raw)
		if errParse != nil {
			return ServerConfig{}, fmt.Errorf("invalid %s: %w", EnvProviderTimeout, errParse)
		}
		result.ProviderTimeout = timeout
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		result.Redis.Addr = v
	}

	if result.Port == 0 {
		result.Port = DefaultPort
	}
	if strings.TrimSpace(result.FrontendURL) == "" {
		result.FrontendURL = DefaultFrontendURL
	}
	if result.ProviderTimeout <= 0 {
		result.ProviderTimeout = DefaultProviderTimeout
	}
	result.EncryptionKey = strings.TrimSpace(result.EncryptionKey)
	if result.EncryptionKey == "" {
		return result, ErrMissingEncryptionKey
	}
	return result, nil
}
