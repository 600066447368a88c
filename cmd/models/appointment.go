package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentRefunded  = "refunded"
	PaymentFailed    = "failed"
)

const (
	RefundNone      = "none"
	RefundPending   = "pending"
	RefundProcessed = "processed"
)

const (
	SessionTypeVideo = "video"
	SessionTypeChat  = "chat"
)

type Appointment struct {
	gorm.Model
	ClientID     uint      `gorm:"column:client_id;not null" json:"client_id"`
	CounsellorID uint      `gorm:"column:counsellor_id;not null;index" json:"counsellor_id"`
	Date         time.Time `gorm:"column:appointment_date;not null" json:"date"`
	StartTime    string    `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime      string    `gorm:"column:end_time;size:5;not null" json:"end_time"`
	SessionType  string    `gorm:"column:session_type;size:20;not null" json:"session_type"`
	Status       string    `gorm:"column:status;size:20;not null;default:pending" json:"status"`

	Amount           float64 `gorm:"column:amount;not null" json:"amount"`
	PaymentStatus    string  `gorm:"column:payment_status;size:20;not null;default:pending" json:"payment_status"`
	PaymentRef       string  `gorm:"column:payment_ref;size:255" json:"payment_ref,omitempty"`
	PlatformFee      float64 `gorm:"column:platform_fee;default:0" json:"platform_fee"`
	CounsellorAmount float64 `gorm:"column:counsellor_amount;default:0" json:"counsellor_amount"`
	MarginUsed       float64 `gorm:"column:margin_used;default:0" json:"margin_used"`
	InvoiceNumber    string  `gorm:"column:invoice_number;size:64" json:"invoice_number,omitempty"`

	CancellationReason string `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason,omitempty"`
	RefundStatus       string `gorm:"column:refund_status;size:20" json:"refund_status,omitempty"`

	Rating          int    `gorm:"column:rating;default:0" json:"rating,omitempty"`
	FeedbackComment string `gorm:"column:feedback_comment;type:text" json:"feedback_comment,omitempty"`

	Client     *User       `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Counsellor *Counsellor `gorm:"foreignKey:CounsellorID" json:"counsellor,omitempty"`
}

// CanTransition reports whether a status change is legal. Completed,
// cancelled and no-show are terminal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled || to == StatusNoShow
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further status transition is accepted.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// EndsBefore reports whether the appointment's date+end time lies strictly
// before the given instant. Times compare lexicographically because they
// are zero-padded "HH:MM" strings.
func (a Appointment) EndsBefore(now time.Time) bool {
	day := a.Date.Format("2006-01-02")
	today := now.Format("2006-01-02")
	if day != today {
		return day < today
	}
	return a.EndTime < now.Format("15:04")
}
