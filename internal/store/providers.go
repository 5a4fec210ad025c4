package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProviderConfig is a provider row with its API key decrypted.
type ProviderConfig struct {
	Name      string
	APIKey    string
	BaseURL   string
	Active    bool
	Models    []models.ModelDescriptor
	Pricing   map[string]models.ModelRate
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Configured reports whether an API key is stored.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// ProviderUpdate carries a partial provider update. Nil fields are left untouched.
type ProviderUpdate struct {
	APIKey  *string                      // Empty string clears the key.
	BaseURL *string                      // Base URL override.
	Active  *bool                        // Enable flag.
	Models  *[]models.ModelDescriptor    // Replacement model list.
	Pricing *map[string]models.ModelRate // Replacement pricing table.
}

// ListProviders returns every provider ordered by name.
func (s *Store) ListProviders(ctx context.Context) ([]ProviderConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []models.Provider
	if errFind := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list providers: %w", errFind)
	}
	out := make([]ProviderConfig, 0, len(rows))
	for i := range rows {
		cfg, errDecode := s.decodeProvider(&rows[i])
		if errDecode != nil {
			return nil, errDecode
		}
		out = append(out, cfg)
	}
	return out, nil
}

// GetProvider loads a provider by name, consulting the cache first.
func (s *Store) GetProvider(ctx context.Context, name string) (ProviderConfig, error) {
	if err := s.ready(); err != nil {
		return ProviderConfig{}, err
	}
	name = strings.TrimSpace(name)
	if row, ok := s.providers.Get(name); ok {
		return s.decodeProvider(&row)
	}
	var row models.Provider
	if errFind := s.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ProviderConfig{}, ErrNotFound
		}
		return ProviderConfig{}, fmt.Errorf("store: get provider: %w", errFind)
	}
	s.providers.Set(row)
	return s.decodeProvider(&row)
}

// UpdateProvider applies a partial update to an existing provider.
func (s *Store) UpdateProvider(ctx context.Context, name string, update ProviderUpdate) (ProviderConfig, error) {
	if err := s.ready(); err != nil {
		return ProviderConfig{}, err
	}
	name = strings.TrimSpace(name)

	var row models.Provider
	if errFind := s.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ProviderConfig{}, ErrNotFound
		}
		return ProviderConfig{}, fmt.Errorf("store: get provider: %w", errFind)
	}

	modelList := row.Models.Data()
	if update.Models != nil {
		modelList = *update.Models
	}
	pricing := row.Pricing.Data()
	if update.Pricing != nil {
		pricing = *update.Pricing
	}
	if errValidate := validatePricing(modelList, pricing); errValidate != nil {
		return ProviderConfig{}, errValidate
	}

	updates := map[string]any{"updated_at": s.now()}
	if update.APIKey != nil {
		key := strings.TrimSpace(*update.APIKey)
		if key == "" {
			updates["api_key_encrypted"] = nil
		} else {
			sealed, errSeal := s.encrypt(key)
			if errSeal != nil {
				return ProviderConfig{}, errSeal
			}
			updates["api_key_encrypted"] = sealed
		}
	}
	if update.BaseURL != nil {
		updates["base_url"] = strings.TrimSpace(*update.BaseURL)
	}
	if update.Active != nil {
		updates["active"] = *update.Active
	}
	if update.Models != nil {
		updates["models"] = datatypes.NewJSONType(modelList)
	}
	if update.Pricing != nil {
		updates["pricing"] = datatypes.NewJSONType(pricing)
	}

	if errUpdate := s.db.WithContext(ctx).Model(&models.Provider{}).Where("name = ?", name).Updates(updates).Error; errUpdate != nil {
		return ProviderConfig{}, fmt.Errorf("store: update provider: %w", errUpdate)
	}
	s.providers.Invalidate(name)
	return s.GetProvider(ctx, name)
}

// ResetProviders clears every stored API key and deactivates all providers.
func (s *Store) ResetProviders(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Provider{}).
		Where("1 = 1").
		Updates(map[string]any{
			"api_key_encrypted": nil,
			"active":            false,
			"updated_at":        s.now(),
		}).Error; errUpdate != nil {
		return fmt.Errorf("store: reset providers: %w", errUpdate)
	}
	s.providers.Clear()
	return nil
}

// validatePricing rejects pricing entries for models that are not listed.
func validatePricing(modelList []models.ModelDescriptor, pricing map[string]models.ModelRate) error {
	known := make(map[string]struct{}, len(modelList))
	for _, m := range modelList {
		known[m.Name] = struct{}{}
	}
	for name, rate := range pricing {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidPricing, name)
		}
		if rate.Input < 0 || rate.Output < 0 {
			return fmt.Errorf("%w: negative rate for %s", ErrInvalidPricing, name)
		}
	}
	return nil
}

func (s *Store) decodeProvider(row *models.Provider) (ProviderConfig, error) {
	cfg := ProviderConfig{
		Name:      row.Name,
		BaseURL:   row.BaseURL,
		Active:    row.Active,
		Models:    row.Models.Data(),
		Pricing:   row.Pricing.Data(),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if cfg.Models == nil {
		cfg.Models = []models.ModelDescriptor{}
	}
	if cfg.Pricing == nil {
		cfg.Pricing = map[string]models.ModelRate{}
	}
	if row.APIKeyEncrypted != nil && *row.APIKeyEncrypted != "" {
		key, errOpen := s.decrypt(*row.APIKeyEncrypted)
		if errOpen != nil {
			return ProviderConfig{}, fmt.Errorf("store: decrypt %s api key: %w", row.Name, errOpen)
		}
		cfg.APIKey = key
	}
	return cfg, nil
}

func (s *Store) encrypt(plain string) (string, error) {
	if s.cipher == nil {
		return "", ErrNoCipher
	}
	return s.cipher.Encrypt(plain)
}

func (s *Store) decrypt(sealed string) (string, error) {
	if s.cipher == nil {
		return "", ErrNoCipher
	}
	return s.cipher.Decrypt(sealed)
}
