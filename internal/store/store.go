// Package store persists AI call records, provider configuration and settings.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/strepsil/internal/cache"
	"github.com/router-for-me/strepsil/internal/db"
	"github.com/router-for-me/strepsil/internal/models"
	"gorm.io/gorm"
)

// MaxReportRecords caps how many records analytics and reports load at once.
const MaxReportRecords = 10000

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateID indicates an insert reused an existing record id.
	ErrDuplicateID = errors.New("store: duplicate id")
	// ErrInvalidStatus indicates an unknown AI call status.
	ErrInvalidStatus = errors.New("store: invalid status")
	// ErrInvalidPricing indicates pricing references a model the provider does not list.
	ErrInvalidPricing = errors.New("store: pricing references unknown model")
	// ErrNoCipher indicates a secret operation without a configured cipher.
	ErrNoCipher = errors.New("store: encryption not configured")
)

// Cipher encrypts and decrypts secrets at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Store is the gorm-backed record store.
type Store struct {
	db        *gorm.DB
	cipher    Cipher
	providers *cache.ProviderCache
	now       func() time.Time
}

// New constructs a Store. cipher and providers may be nil.
func New(conn *gorm.DB, cipher Cipher, providers *cache.ProviderCache) *Store {
	return &Store{
		db:        conn,
		cipher:    cipher,
		providers: providers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	return nil
}

// InsertCall persists a new AI call. The caller supplies the id.
func (s *Store) InsertCall(ctx context.Context, call *models.AICall) error {
	if err := s.ready(); err != nil {
		return err
	}
	if call == nil {
		return fmt.Errorf("store: call is nil")
	}
	call.ID = strings.TrimSpace(call.ID)
	if call.ID == "" {
		return fmt.Errorf("store: missing id")
	}
	if call.Status == "" {
		call.Status = models.AICallStatusSuccess
	}
	if !call.Status.Valid() {
		return ErrInvalidStatus
	}
	now := s.now()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.CreatedAt = call.CreatedAt.UTC()
	if call.UpdatedAt.IsZero() {
		call.UpdatedAt = call.CreatedAt
	}

	if errCreate := s.db.WithContext(ctx).Create(call).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return ErrDuplicateID
		}
		return fmt.Errorf("store: insert call: %w", errCreate)
	}
	return nil
}

// GetCall loads one AI call by id.
func (s *Store) GetCall(ctx context.Context, id string) (models.AICall, error) {
	if err := s.ready(); err != nil {
		return models.AICall{}, err
	}
	var call models.AICall
	if errFind := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&call).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.AICall{}, ErrNotFound
		}
		return models.AICall{}, fmt.Errorf("store: get call: %w", errFind)
	}
	return call, nil
}

// QueryCalls returns calls matching f, newest first.
// A non-positive limit loads up to MaxReportRecords rows.
func (s *Store) QueryCalls(ctx context.Context, f CallFilter, limit, offset int) ([]models.AICall, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxReportRecords {
		limit = MaxReportRecords
	}
	if offset < 0 {
		offset = 0
	}
	var rows []models.AICall
	q := f.apply(s.db.WithContext(ctx).Model(&models.AICall{}))
	if errFind := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: query calls: %w", errFind)
	}
	return rows, nil
}

// CountCalls counts calls matching f.
func (s *Store) CountCalls(ctx context.Context, f CallFilter) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var count int64
	if errCount := f.apply(s.db.WithContext(ctx).Model(&models.AICall{})).Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("store: count calls: %w", errCount)
	}
	return count, nil
}

// UpdateCallStatus overwrites status and error_message; nothing else changes.
func (s *Store) UpdateCallStatus(ctx context.Context, id string, status models.AICallStatus, errorMessage *string) (models.AICall, error) {
	if err := s.ready(); err != nil {
		return models.AICall{}, err
	}
	if !status.Valid() {
		return models.AICall{}, ErrInvalidStatus
	}
	res := s.db.WithContext(ctx).Model(&models.AICall{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(map[string]any{
			"status":        status,
			"error_message": errorMessage,
			"updated_at":    s.now(),
		})
	if res.Error != nil {
		return models.AICall{}, fmt.Errorf("store: update call status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.AICall{}, ErrNotFound
	}
	return s.GetCall(ctx, id)
}

// DeleteCall removes one call. Deleting a missing id is not an error.
func (s *Store) DeleteCall(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if errDelete := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&models.AICall{}).Error; errDelete != nil {
		return fmt.Errorf("store: delete call: %w", errDelete)
	}
	return nil
}

// DeleteCalls deletes ids one by one without a surrounding transaction.
// It returns how many rows were removed before the first failure.
func (s *Store) DeleteCalls(ctx context.Context, ids []string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var deleted int64
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.AICall{})
		if res.Error != nil {
			return deleted, fmt.Errorf("store: delete call %s: %w", id, res.Error)
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}
