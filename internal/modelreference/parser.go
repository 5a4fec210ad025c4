package modelreference

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/router-for-me/strepsil/internal/models"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/datatypes"
)

// tokensPerQuote is the token count models.dev prices are quoted for.
var tokensPerQuote = decimal.NewFromInt(1_000_000)

// ErrEmptyPayload indicates the models payload carried nothing to parse.
var ErrEmptyPayload = errors.New("parse models payload: empty payload")

type refKey struct {
	provider string
	model    string
}

// ParseModelsPayload converts the models.dev payload into per-token price references.
// Models are keyed by their id so they line up with provider model lists; providers
// sharing a display name are merged, the first non-empty value winning per field.
func ParseModelsPayload(data []byte) ([]models.PriceReference, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyPayload
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse models payload: invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("parse models payload: expected an object of providers")
	}

	refs := make(map[refKey]models.PriceReference)
	var errWalk error
	root.ForEach(func(providerID, provider gjson.Result) bool {
		if !provider.IsObject() {
			return true
		}
		providerName := firstNonEmpty(provider.Get("name").String(), providerID.String())
		if providerName == "" {
			return true
		}
		providerExtra, err := stripFields(provider.Raw, "models", "name", "id")
		if err != nil {
			errWalk = fmt.Errorf("parse models payload: provider %s: %w", providerID.String(), err)
			return false
		}

		provider.Get("models").ForEach(func(modelID, model gjson.Result) bool {
			if !model.IsObject() {
				return true
			}
			modelName := firstNonEmpty(modelID.String(), model.Get("name").String())
			if modelName == "" {
				return true
			}
			ref, errRef := buildReference(providerName, modelName, model, providerExtra)
			if errRef != nil {
				errWalk = fmt.Errorf("parse models payload: model %s: %w", modelName, errRef)
				return false
			}
			key := refKey{provider: providerName, model: modelName}
			if existing, ok := refs[key]; ok {
				ref = mergeReference(existing, ref)
			}
			refs[key] = ref
			return true
		})
		return errWalk == nil
	})
	if errWalk != nil {
		return nil, errWalk
	}
	if len(refs) == 0 {
		return nil, nil
	}

	keys := make([]refKey, 0, len(refs))
	for key := range refs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].provider != keys[j].provider {
			return keys[i].provider < keys[j].provider
		}
		return keys[i].model < keys[j].model
	})
	out := make([]models.PriceReference, 0, len(keys))
	for _, key := range keys {
		out = append(out, refs[key])
	}
	return out, nil
}

func buildReference(providerName, modelName string, model gjson.Result, providerExtra string) (models.PriceReference, error) {
	modelExtra, err := stripFields(model.Raw, "id", "limit")
	if err != nil {
		return models.PriceReference{}, err
	}
	extra := "{}"
	if providerExtra != "" {
		if extra, err = sjson.SetRaw(extra, "provider", providerExtra); err != nil {
			return models.PriceReference{}, err
		}
	}
	if modelExtra != "" {
		if extra, err = sjson.SetRaw(extra, "model", modelExtra); err != nil {
			return models.PriceReference{}, err
		}
	}
	return models.PriceReference{
		ProviderName: providerName,
		ModelName:    modelName,
		ContextLimit: int(model.Get("limit.context").Int()),
		OutputLimit:  int(model.Get("limit.output").Int()),
		InputPrice:   perToken(model.Get("cost.input")),
		OutputPrice:  perToken(model.Get("cost.output")),
		Extra:        datatypes.JSON(extra),
	}, nil
}

// stripFields removes top-level fields from a JSON object. An object left empty yields "".
func stripFields(raw string, fields ...string) (string, error) {
	out := raw
	for _, field := range fields {
		var err error
		if out, err = sjson.Delete(out, field); err != nil {
			return "", err
		}
	}
	if len(gjson.Parse(out).Map()) == 0 {
		return "", nil
	}
	return out, nil
}

func mergeReference(base, incoming models.PriceReference) models.PriceReference {
	if base.ContextLimit == 0 {
		base.ContextLimit = incoming.ContextLimit
	}
	if base.OutputLimit == 0 {
		base.OutputLimit = incoming.OutputLimit
	}
	if base.InputPrice == nil {
		base.InputPrice = incoming.InputPrice
	}
	if base.OutputPrice == nil {
		base.OutputPrice = incoming.OutputPrice
	}
	if string(base.Extra) == "{}" {
		base.Extra = incoming.Extra
	}
	return base
}

// perToken converts a per-million-token quote into a per-token price.
func perToken(quote gjson.Result) *float64 {
	if quote.Type != gjson.Number {
		return nil
	}
	v := decimal.NewFromFloat(quote.Float()).Div(tokensPerQuote).InexactFloat64()
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
