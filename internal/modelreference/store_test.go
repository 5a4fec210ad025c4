package modelreference

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/strepsil/internal/db"
	"github.com/router-for-me/strepsil/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "refs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func price(v float64) *float64 { return &v }

func TestStoreReferences_UpsertAndPrune(t *testing.T) {
	conn := openTestDB(t)

	now := time.Now().UTC()
	refs := []models.PriceReference{
		{ProviderName: "OpenAI", ModelName: "gpt-4o", InputPrice: price(0.0000025)},
		{ProviderName: "OpenAI", ModelName: "gpt-legacy"},
	}
	if errStore := StoreReferences(context.Background(), conn, refs, now); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	later := now.Add(time.Minute)
	if errStore := StoreReferences(context.Background(), conn, refs[:1], later); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	rows, err := ListReferences(context.Background(), conn, "openai")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ModelName != "gpt-4o" {
		t.Fatalf("expected only gpt-4o after prune, got %+v", rows)
	}
	if !rows[0].LastSeenAt.Equal(later) {
		t.Fatalf("expected last_seen_at to be updated")
	}
}

func TestSuggest(t *testing.T) {
	conn := openTestDB(t)
	refs := []models.PriceReference{
		{ProviderName: "OpenAI", ModelName: "gpt-4o", InputPrice: price(0.0000025), OutputPrice: price(0.00001)},
		{ProviderName: "OpenAI", ModelName: "gpt-4o-mini", InputPrice: price(0.00000015)},
		{ProviderName: "OpenAI", ModelName: "gpt-unpriced"},
		{ProviderName: "Anthropic", ModelName: "gpt-4o", InputPrice: price(9)},
	}
	if errStore := StoreReferences(context.Background(), conn, refs, time.Now()); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	got, err := Suggest(context.Background(), conn, "OpenAI", []string{"gpt-4o", "gpt-4o-mini", "gpt-unpriced", "unknown"})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", got)
	}
	if got["gpt-4o"].Input != 0.0000025 || got["gpt-4o"].Output != 0.00001 {
		t.Fatalf("unexpected gpt-4o suggestion: %+v", got["gpt-4o"])
	}
	if got["gpt-4o-mini"].Output != 0 {
		t.Fatalf("missing output quote must be 0, got %+v", got["gpt-4o-mini"])
	}
}
