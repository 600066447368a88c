package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	WithdrawalPending   = "pending"
	WithdrawalApproved  = "approved"
	WithdrawalProcessed = "processed"
	WithdrawalRejected  = "rejected"
)

// MinimumWithdrawal is the smallest amount a counsellor may request.
const MinimumWithdrawal = 100.0

// PaymentSettings is a singleton configuration row. Splits capture the
// margin in force at payment-completion time, so edits here only affect
// future computations.
type PaymentSettings struct {
	gorm.Model
	GlobalMargin float64 `gorm:"column:global_margin;not null;default:20" json:"global_margin"`
}

func (PaymentSettings) TableName() string {
	return "payment_settings"
}

// CounsellorMargin overrides the global margin for one counsellor.
type CounsellorMargin struct {
	gorm.Model
	CounsellorID uint    `gorm:"column:counsellor_id;not null;uniqueIndex" json:"counsellor_id"`
	Margin       float64 `gorm:"column:margin;not null" json:"margin"`

	Counsellor *Counsellor `gorm:"foreignKey:CounsellorID" json:"-"`
}

type WithdrawalRequest struct {
	gorm.Model
	CounsellorID    uint       `gorm:"column:counsellor_id;not null;index" json:"counsellor_id"`
	Amount          float64    `gorm:"column:amount;not null" json:"amount"`
	Status          string     `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	TransactionID   string     `gorm:"column:transaction_id;size:255" json:"transaction_id,omitempty"`
	RejectionReason string     `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	ProcessedAt     *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`

	Counsellor *Counsellor `gorm:"foreignKey:CounsellorID" json:"counsellor,omitempty"`
}

// WithdrawalTerminal reports whether a request can no longer change state.
func WithdrawalTerminal(status string) bool {
	return status == WithdrawalProcessed || status == WithdrawalRejected
}
