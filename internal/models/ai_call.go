package models

import (
	"time"

	"gorm.io/datatypes"
)

// AICallStatus represents the outcome recorded for a provider invocation.
type AICallStatus string

// AICallStatus constants define the record status values.
const (
	// AICallStatusSuccess marks a call that returned a usable response.
	AICallStatusSuccess AICallStatus = "success"
	// AICallStatusFailure marks a call that errored upstream.
	AICallStatusFailure AICallStatus = "failure"
	// AICallStatusRetry marks a call that was retried by the client.
	AICallStatusRetry AICallStatus = "retry"
	// AICallStatusHallucination marks a call whose response was judged wrong.
	AICallStatusHallucination AICallStatus = "hallucination"
)

// Valid reports whether the status is one of the known values.
func (s AICallStatus) Valid() bool {
	switch s {
	case AICallStatusSuccess, AICallStatusFailure, AICallStatusRetry, AICallStatusHallucination:
		return true
	default:
		return false
	}
}

// AICall records one AI provider invocation attempt.
type AICall struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Record identifier (uuid).

	Provider  string `gorm:"type:varchar(255);not null;index"` // Provider name.
	ModelType string `gorm:"type:varchar(255);not null;index"` // Model identifier.
	Endpoint  string `gorm:"type:varchar(255);not null"`       // Upstream endpoint path.

	Prompt   string  `gorm:"type:text;not null"` // Serialized input messages.
	Response *string `gorm:"type:text"`          // Extracted response text.

	TokensIn  int64 `gorm:"not null;default:0"` // Prompt tokens.
	TokensOut int64 `gorm:"not null;default:0"` // Completion tokens.

	CostPerTokenIn  float64 `gorm:"type:decimal(20,10);not null;default:0"` // Input token rate.
	CostPerTokenOut float64 `gorm:"type:decimal(20,10);not null;default:0"` // Output token rate.
	TotalCost       float64 `gorm:"type:decimal(20,10);not null;default:0"` // Derived total cost.

	LatencyMS int64 `gorm:"column:latency_ms;not null;default:0"` // Provider round trip in milliseconds.

	Status       AICallStatus `gorm:"type:varchar(32);not null;default:'success';index"` // Call outcome.
	ErrorMessage *string      `gorm:"type:text"`                                         // Upstream error text.

	Metadata datatypes.JSON `gorm:"type:json"` // Free-form side channel.

	CreatedAt time.Time `gorm:"not null;index"` // Insert timestamp.
	UpdatedAt time.Time `gorm:"not null"`       // Last status change.
}

// TableName overrides the default table name.
func (AICall) TableName() string {
	return "ai_calls"
}

// TotalTokens returns the combined prompt and completion token count.
func (c *AICall) TotalTokens() int64 {
	if c == nil {
		return 0
	}
	return c.TokensIn + c.TokensOut
}
