package models

import (
	"gorm.io/gorm"
)

// SessionResource is post-session material a counsellor shares with the
// client of a completed appointment (notes, exercises, reading links).
type SessionResource struct {
	gorm.Model
	AppointmentID uint   `gorm:"column:appointment_id;not null;index" json:"appointment_id"`
	CounsellorID  uint   `gorm:"column:counsellor_id;not null" json:"counsellor_id"`
	ClientID      uint   `gorm:"column:client_id;not null;index" json:"client_id"`
	Title         string `gorm:"column:title;size:255;not null" json:"title"`
	Content       string `gorm:"column:content;type:text" json:"content"`
	Link          string `gorm:"column:link;size:500" json:"link,omitempty"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
}
