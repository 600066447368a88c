package models

import (
	"gorm.io/gorm"
)

// Transaction is a ledger row recorded when money moves: an appointment
// payment completing or a withdrawal being processed.
type Transaction struct {
	gorm.Model
	UserID    uint    `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount    float64 `gorm:"column:amount;type:float;not null" json:"amount"`
	Method    string  `gorm:"column:method;type:text;not null" json:"method"`
	Purpose   string  `gorm:"column:purpose;type:text;not null" json:"purpose"`
	Reference string  `gorm:"column:reference;size:255" json:"reference,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
