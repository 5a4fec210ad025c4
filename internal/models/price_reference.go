package models

import (
	"time"

	"gorm.io/datatypes"
)

// PriceReference stores public per-token reference prices for a model.
type PriceReference struct {
	ProviderName string `gorm:"type:varchar(255);not null;primaryKey"` // Provider display name.
	ModelName    string `gorm:"type:varchar(255);not null;primaryKey"` // Model identifier.

	ContextLimit int `gorm:"not null;default:0"` // Max context length.
	OutputLimit  int `gorm:"not null;default:0"` // Max output tokens.

	InputPrice  *float64 `gorm:"type:decimal(20,12)"` // Price per prompt token.
	OutputPrice *float64 `gorm:"type:decimal(20,12)"` // Price per completion token.

	Extra      datatypes.JSON `gorm:"type:json"`               // Remaining payload fields.
	LastSeenAt time.Time      `gorm:"not null;index"`          // Last sync timestamp.
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime"` // Update timestamp.
}

// TableName overrides the default table name.
func (PriceReference) TableName() string {
	return "price_references"
}
