package models

import "time"

// Setting stores a scalar application setting.
type Setting struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`  // Setting key.
	Value     string    `gorm:"type:text;not null;default:''"` // Plain or encrypted value.
	Encrypted bool      `gorm:"not null;default:false"`        // Whether Value is ciphertext.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}
