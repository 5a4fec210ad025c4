package modelreference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreReferences upserts price references and prunes rows not seen in this sync.
func StoreReferences(ctx context.Context, db *gorm.DB, refs []models.PriceReference, syncTime time.Time) error {
	if db == nil {
		return fmt.Errorf("store price references: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if syncTime.IsZero() {
		syncTime = time.Now().UTC()
	}
	syncTime = syncTime.UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(refs) == 0 {
			return nil
		}
		for i := range refs {
			refs[i].LastSeenAt = syncTime
			refs[i].UpdatedAt = syncTime
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_name"}, {Name: "model_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"context_limit",
				"output_limit",
				"input_price",
				"output_price",
				"extra",
				"last_seen_at",
				"updated_at",
			}),
		}).CreateInBatches(&refs, 200).Error; err != nil {
			return fmt.Errorf("store price references: upsert: %w", err)
		}

		if err := tx.Where("last_seen_at < ?", syncTime).Delete(&models.PriceReference{}).Error; err != nil {
			return fmt.Errorf("store price references: prune: %w", err)
		}
		return nil
	})
}

// ListReferences returns stored references, optionally for one provider.
func ListReferences(ctx context.Context, db *gorm.DB, provider string) ([]models.PriceReference, error) {
	if db == nil {
		return nil, fmt.Errorf("list price references: nil db")
	}
	q := db.WithContext(ctx).Model(&models.PriceReference{})
	if name := strings.TrimSpace(provider); name != "" {
		q = q.Where("LOWER(provider_name) = ?", strings.ToLower(name))
	}
	var rows []models.PriceReference
	if err := q.Order("provider_name ASC").Order("model_name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list price references: %w", err)
	}
	return rows, nil
}

// Suggest proposes per-token pricing for modelNames from the references of provider.
// Models without a reference are omitted; a missing side of a quote is 0.
func Suggest(ctx context.Context, db *gorm.DB, provider string, modelNames []string) (map[string]models.ModelRate, error) {
	out := make(map[string]models.ModelRate)
	if len(modelNames) == 0 {
		return out, nil
	}
	refs, err := ListReferences(ctx, db, provider)
	if err != nil {
		return nil, err
	}
	byModel := make(map[string]models.PriceReference, len(refs))
	for _, ref := range refs {
		byModel[ref.ModelName] = ref
	}
	for _, name := range modelNames {
		ref, ok := byModel[name]
		if !ok || (ref.InputPrice == nil && ref.OutputPrice == nil) {
			continue
		}
		rate := models.ModelRate{}
		if ref.InputPrice != nil {
			rate.Input = *ref.InputPrice
		}
		if ref.OutputPrice != nil {
			rate.Output = *ref.OutputPrice
		}
		out[name] = rate
	}
	return out, nil
}
