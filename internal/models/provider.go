package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelDescriptor describes one model offered by a provider.
type ModelDescriptor struct {
	Name          string `json:"name"`                     // Model identifier sent upstream.
	DisplayName   string `json:"display_name,omitempty"`   // Human readable label.
	ContextWindow int    `json:"context_window,omitempty"` // Max context tokens.
}

// ModelRate holds per-token prices for one model.
type ModelRate struct {
	Input  float64 `json:"input"`  // Price per prompt token.
	Output float64 `json:"output"` // Price per completion token.
}

// Provider stores credentials, models and pricing for an AI provider.
type Provider struct {
	Name string `gorm:"type:varchar(64);primaryKey"` // Provider name (e.g. OpenAI).

	APIKeyEncrypted *string `gorm:"column:api_key_encrypted;type:text"` // Encrypted API key.
	BaseURL         string  `gorm:"type:varchar(512)"`                  // Base URL override.
	Active          bool    `gorm:"not null;default:false"`             // Whether the provider is enabled.

	Models  datatypes.JSONType[[]ModelDescriptor]    // Ordered model list.
	Pricing datatypes.JSONType[map[string]ModelRate] // Model name to per-token rates.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Provider) TableName() string {
	return "ai_providers"
}

// Rate returns the configured pricing for a model.
func (p *Provider) Rate(model string) (ModelRate, bool) {
	if p == nil {
		return ModelRate{}, false
	}
	rate, ok := p.Pricing.Data()[model]
	return rate, ok
}
