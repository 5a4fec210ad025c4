package modelreference

import (
	"bytes"
	"testing"

	"github.com/router-for-me/strepsil/internal/models"
)

func findReference(refs []models.PriceReference, providerName, modelName string) *models.PriceReference {
	for i := range refs {
		if refs[i].ProviderName == providerName && refs[i].ModelName == modelName {
			return &refs[i]
		}
	}
	return nil
}

func TestParseModelsPayload_PerTokenPricesAndExtras(t *testing.T) {
	payload := []byte(`{"openai":{"name":"OpenAI","api":"https://api.openai.com","models":{"gpt-4o":{"id":"gpt-4o","name":"GPT-4o","cost":{"input":2.5,"output":10,"cache_read":1.25},"limit":{"context":128000,"output":16384},"family":"gpt"},"gpt-free":{"limit":{"context":0}}}}}`)

	refs, err := ParseModelsPayload(payload)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}

	ref := findReference(refs, "OpenAI", "gpt-4o")
	if ref == nil {
		t.Fatalf("expected gpt-4o reference keyed by model id")
	}
	if ref.ContextLimit != 128000 || ref.OutputLimit != 16384 {
		t.Fatalf("unexpected limits: context=%d output=%d", ref.ContextLimit, ref.OutputLimit)
	}
	if ref.InputPrice == nil || *ref.InputPrice != 0.0000025 {
		t.Fatalf("unexpected input price: %v", ref.InputPrice)
	}
	if ref.OutputPrice == nil || *ref.OutputPrice != 0.00001 {
		t.Fatalf("unexpected output price: %v", ref.OutputPrice)
	}
	if !bytes.Contains(ref.Extra, []byte(`"cache_read"`)) || !bytes.Contains(ref.Extra, []byte(`"GPT-4o"`)) {
		t.Fatalf("expected remaining fields in extra, got %s", ref.Extra)
	}
	if bytes.Contains(ref.Extra, []byte(`"id"`)) {
		t.Fatalf("expected ids to be excluded from extra, got %s", ref.Extra)
	}

	free := findReference(refs, "OpenAI", "gpt-free")
	if free == nil || free.InputPrice != nil || free.OutputPrice != nil {
		t.Fatalf("expected unpriced reference, got %+v", free)
	}
}

func TestParseModelsPayload_MergesSameProviderName(t *testing.T) {
	payload := []byte(`{"a":{"name":"Shared","models":{"m":{"cost":{"input":1}}}},"b":{"name":"Shared","models":{"m":{"cost":{"output":2},"limit":{"context":4096}}}}}`)

	refs, err := ParseModelsPayload(payload)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref, got %d", len(refs))
	}
	ref := refs[0]
	if ref.InputPrice == nil || *ref.InputPrice != 0.000001 {
		t.Fatalf("unexpected input price")
	}
	if ref.OutputPrice == nil || *ref.OutputPrice != 0.000002 {
		t.Fatalf("unexpected output price")
	}
	if ref.ContextLimit != 4096 {
		t.Fatalf("unexpected context limit")
	}
}

func TestParseModelsPayload_Empty(t *testing.T) {
	if _, err := ParseModelsPayload(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestParseModelsPayload_Malformed(t *testing.T) {
	if _, err := ParseModelsPayload([]byte(`{"openai":`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
	if _, err := ParseModelsPayload([]byte(`[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
	refs, err := ParseModelsPayload([]byte(`{"x":{"name":"X","models":{"m":"not-an-object"}}}`))
	if err != nil || len(refs) != 0 {
		t.Fatalf("expected non-object models to be skipped, got %v %v", refs, err)
	}
}
