package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/strepsil/internal/config"
	"github.com/router-for-me/strepsil/internal/security"
	"gopkg.in/yaml.v3"
)

// InitOptions describes the database and listener written into a new config file.
type InitOptions struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabasePath     string
	DatabaseSSLMode  string
	Port             int
	FrontendURL      string
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "strepsil.db"

// BuildDSN builds a database DSN from the init options.
func BuildDSN(opts InitOptions) (string, error) {
	switch strings.ToLower(strings.TrimSpace(opts.DatabaseType)) {
	case "", "sqlite":
		return buildSQLiteDSN(opts.DatabasePath), nil
	case "postgres":
		sslMode := opts.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			opts.DatabaseUser,
			opts.DatabasePassword,
			opts.DatabaseHost,
			opts.DatabasePort,
			opts.DatabaseName,
			sslMode,
		), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default pragmas.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
}

// validateInitOptions normalizes and validates init options.
func validateInitOptions(opts *InitOptions) error {
	dbType := strings.ToLower(strings.TrimSpace(opts.DatabaseType))
	if dbType == "" {
		dbType = "sqlite"
	}
	opts.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(opts.DatabaseHost) == "" {
			return fmt.Errorf("database host is required")
		}
		if opts.DatabasePort <= 0 {
			opts.DatabasePort = 5432
		}
		if strings.TrimSpace(opts.DatabaseUser) == "" {
			return fmt.Errorf("database username is required")
		}
		if strings.TrimSpace(opts.DatabaseName) == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if strings.TrimSpace(opts.DatabasePath) == "" {
			opts.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type %q", opts.DatabaseType)
	}
	if opts.Port <= 0 {
		opts.Port = config.DefaultPort
	}
	if strings.TrimSpace(opts.FrontendURL) == "" {
		opts.FrontendURL = config.DefaultFrontendURL
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Port            int    `yaml:"port"`
	DatabaseDSN     string `yaml:"database-dsn"`
	FrontendURL     string `yaml:"frontend-url"`
	EncryptionKey   string `yaml:"encryption-key"`
	ProviderTimeout string `yaml:"provider-timeout"`
	Debug           bool   `yaml:"debug"`
	JWT             jwtCfg `yaml:"jwt"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// generateSecret creates a random secret string, falling back to a placeholder.
func generateSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes a new config file with fresh encryption and JWT secrets.
func WriteConfigFile(configPath string, opts InitOptions) error {
	if errValidate := validateInitOptions(&opts); errValidate != nil {
		return errValidate
	}
	dsn, errDSN := BuildDSN(opts)
	if errDSN != nil {
		return errDSN
	}
	cfg := configFile{
		Port:            opts.Port,
		DatabaseDSN:     dsn,
		FrontendURL:     opts.FrontendURL,
		EncryptionKey:   generateSecret(),
		ProviderTimeout: config.DefaultProviderTimeout.String(),
		Debug:           false,
		JWT: jwtCfg{
			Secret: generateSecret(),
			Expiry: "720h",
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}
