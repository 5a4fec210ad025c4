package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSetting returns the plain value of a setting.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	var row models.Setting
	if errFind := s.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: get setting: %w", errFind)
	}
	return s.settingValue(&row)
}

// SetupCompleted reports whether the setup wizard has been finished.
// A missing setting means setup has not run.
func (s *Store) SetupCompleted(ctx context.Context) (bool, error) {
	value, err := s.GetSetting(ctx, internalsettings.SetupCompletedKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

// ListSettings returns every setting with encrypted values opened.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list settings: %w", errFind)
	}
	out := make(map[string]string, len(rows))
	for i := range rows {
		value, errValue := s.settingValue(&rows[i])
		if errValue != nil {
			return nil, errValue
		}
		out[rows[i].Key] = value
	}
	return out, nil
}

// SetSetting upserts a setting, sealing the value when encrypted is set.
func (s *Store) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("store: setting key is empty")
	}
	stored := value
	if encrypted {
		sealed, errSeal := s.encrypt(value)
		if errSeal != nil {
			return errSeal
		}
		stored = sealed
	}
	row := models.Setting{
		Key:       key,
		Value:     stored,
		Encrypted: encrypted,
		UpdatedAt: s.now(),
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "encrypted", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("store: upsert setting: %w", errUpsert)
	}
	return nil
}

// RefreshSnapshot loads plain (unencrypted) settings into snap.
func (s *Store) RefreshSnapshot(ctx context.Context, snap *internalsettings.Snapshot) error {
	if err := s.ready(); err != nil {
		return err
	}
	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).
		Select("key", "value", "encrypted", "updated_at").
		Where("encrypted = ?", false).
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("store: load settings snapshot: %w", errFind)
	}
	values := make(map[string]string, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		values[row.Key] = row.Value
		if row.UpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = row.UpdatedAt.UTC()
		}
	}
	snap.Store(maxUpdatedAt, values)
	return nil
}

func (s *Store) settingValue(row *models.Setting) (string, error) {
	if !row.Encrypted {
		return row.Value, nil
	}
	plain, errOpen := s.decrypt(row.Value)
	if errOpen != nil {
		return "", fmt.Errorf("store: decrypt setting %s: %w", row.Key, errOpen)
	}
	return plain, nil
}
