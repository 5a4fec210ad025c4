package db

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// ddl defines an index or DDL statement to apply.
type ddl struct {
	name string // Human-readable name for error reporting.
	sql  string // SQL to execute.
}

// commonDDLs apply to both dialects.
var commonDDLs = []ddl{
	{
		name: "idx_ai_calls_created_at_id",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_ai_calls_created_at_id
			ON ai_calls (created_at DESC, id DESC)
		`,
	},
	{
		name: "idx_ai_calls_provider_model_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_ai_calls_provider_model_created_at
			ON ai_calls (provider, model_type, created_at DESC)
		`,
	},
	{
		name: "idx_ai_calls_failures",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_ai_calls_failures
			ON ai_calls (created_at)
			WHERE status = 'failure'
		`,
	},
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.AICall{},
		&models.Provider{},
		&models.Setting{},
		&models.PriceReference{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errMetadata := conn.Exec(`
		ALTER TABLE ai_calls
		ALTER COLUMN metadata TYPE jsonb USING metadata::jsonb
	`).Error; errMetadata != nil {
		return fmt.Errorf("db: convert ai_calls metadata to jsonb: %w", errMetadata)
	}

	if errApply := applyDDLs(conn, commonDDLs); errApply != nil {
		return errApply
	}
	return ensureSeeds(conn)
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.AICall{},
		&models.Provider{},
		&models.Setting{},
		&models.PriceReference{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errApply := applyDDLs(conn, commonDDLs); errApply != nil {
		return errApply
	}
	return ensureSeeds(conn)
}

func applyDDLs(conn *gorm.DB, ddls []ddl) error {
	for _, stmt := range ddls {
		if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
			return fmt.Errorf("db: apply %s: %w", stmt.name, errExec)
		}
	}
	return nil
}

func ensureSeeds(conn *gorm.DB) error {
	if errSeed := ensureDefaultProviders(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureStringSetting(conn, internalsettings.SetupCompletedKey, "false"); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureStringSetting(conn, internalsettings.AppNameKey, internalsettings.DefaultAppName); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureStringSetting(conn, internalsettings.AppVersionKey, internalsettings.DefaultAppVersion); errSeed != nil {
		return errSeed
	}
	return ensureIntSetting(conn, internalsettings.RateLimitKey, internalsettings.DefaultRateLimit)
}

// defaultProviders are inserted once; later edits are never overwritten.
func defaultProviders() []models.Provider {
	return []models.Provider{
		{
			Name: "OpenAI",
			Models: datatypes.NewJSONType([]models.ModelDescriptor{
				{Name: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000},
				{Name: "gpt-4o-mini", DisplayName: "GPT-4o mini", ContextWindow: 128000},
				{Name: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", ContextWindow: 128000},
				{Name: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo", ContextWindow: 16385},
			}),
			Pricing: datatypes.NewJSONType(map[string]models.ModelRate{
				"gpt-4o":        {Input: 0.0000025, Output: 0.00001},
				"gpt-4o-mini":   {Input: 0.00000015, Output: 0.0000006},
				"gpt-4-turbo":   {Input: 0.00001, Output: 0.00003},
				"gpt-3.5-turbo": {Input: 0.0000005, Output: 0.0000015},
			}),
		},
		{
			Name: "Anthropic",
			Models: datatypes.NewJSONType([]models.ModelDescriptor{
				{Name: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet", ContextWindow: 200000},
				{Name: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", ContextWindow: 200000},
				{Name: "claude-3-opus-20240229", DisplayName: "Claude 3 Opus", ContextWindow: 200000},
			}),
			Pricing: datatypes.NewJSONType(map[string]models.ModelRate{
				"claude-3-5-sonnet-20241022": {Input: 0.000003, Output: 0.000015},
				"claude-3-5-haiku-20241022":  {Input: 0.0000008, Output: 0.000004},
				"claude-3-opus-20240229":     {Input: 0.000015, Output: 0.000075},
			}),
		},
	}
}

func ensureDefaultProviders(conn *gorm.DB) error {
	for _, provider := range defaultProviders() {
		var existing models.Provider
		errFind := conn.Where("name = ?", provider.Name).Take(&existing).Error
		if errFind == nil {
			continue
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("db: query provider %s: %w", provider.Name, errFind)
		}
		row := provider
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: seed provider %s: %w", provider.Name, errCreate)
		}
	}
	return nil
}

func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	return ensureStringSetting(conn, key, strconv.Itoa(value))
}

func ensureStringSetting(conn *gorm.DB, key, value string) error {
	var count int64
	if errCount := conn.Model(&models.Setting{}).Where("key = ?", key).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: query %s setting: %w", key, errCount)
	}
	if count > 0 {
		return nil
	}
	setting := models.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
