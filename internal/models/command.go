package models

import "gorm.io/gorm"

// Command records one analysed natural-language command and its verdict.
type Command struct {
	gorm.Model
	Source     string `json:"source"`
	Transcript string `gorm:"type:text" json:"transcript"`
	Action     string `json:"action"`
	Symbol     string `gorm:"index" json:"symbol"`
	IntentJSON string `gorm:"type:text" json:"intent_json"`
	Valid      bool   `json:"valid"`
	Errors     string `gorm:"type:text" json:"errors,omitempty"` // newline separated
}
