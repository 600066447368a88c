package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleClient     = "client"
	RoleCounsellor = "counsellor"
	RoleAdmin      = "admin"
)

type User struct {
	gorm.Model
	FullName              string    `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email                 string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role                  string    `gorm:"column:role;size:50;not null" json:"role"`
	Phone                 string    `gorm:"column:phone;size:20" json:"phone"`
	EmailVerified         bool      `gorm:"column:email_verified;default:false" json:"email_verified"`
	Status                string    `gorm:"column:status;size:50;not null;default:inactive" json:"status"`
	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`
	EmailVerificationCode string    `gorm:"size:6" json:"-"`
	VerificationExpiry    time.Time `json:"-"`

	Counsellor *Counsellor `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"counsellor,omitempty"`
}

type Counsellor struct {
	gorm.Model
	UserID         uint    `gorm:"column:user_id;not null" json:"user_id"`
	Specialization string  `gorm:"column:specialization;size:255" json:"specialization"`
	Bio            string  `gorm:"column:bio;type:text" json:"bio"`
	Verified       bool    `gorm:"column:verified;default:false" json:"verified"`
	VideoFee       float64 `gorm:"column:video_fee;not null;default:0" json:"video_fee"`
	ChatFee        float64 `gorm:"column:chat_fee;not null;default:0" json:"chat_fee"`
	AverageRating  float64 `gorm:"column:average_rating;default:0" json:"average_rating"`
	TotalRatings   int     `gorm:"column:total_ratings;default:0" json:"total_ratings"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Counsellor) TableName() string {
	return "counsellors"
}

// FeeFor returns the published fee for a session type. Booking copies this
// value onto the appointment; later fee changes never reprice existing
// appointments.
func (c Counsellor) FeeFor(sessionType string) (float64, bool) {
	switch sessionType {
	case SessionTypeVideo:
		return c.VideoFee, true
	case SessionTypeChat:
		return c.ChatFee, true
	default:
		return 0, false
	}
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
