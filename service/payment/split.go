package payment

import (
	"errors"
	"math"

	"github.com/solacehq/solace-server/cmd/models"
	"gorm.io/gorm"
)

var (
	ErrMarginOutOfRange = errors.New("margin must be between 0 and 50")
	ErrNegativeAmount   = errors.New("amount must not be negative")
)

const maxMargin = 50.0

// round2 rounds half-up to 2 decimal places.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// ValidMargin reports whether a margin percentage is acceptable.
func ValidMargin(margin float64) bool {
	return margin >= 0 && margin <= maxMargin
}

// ComputeSplit divides a gross session amount into the platform fee and the
// counsellor payout. The payout absorbs any rounding remainder so the two
// parts always sum back to the gross amount.
func ComputeSplit(amount, margin float64) (platformFee, counsellorAmount float64, err error) {
	if !ValidMargin(margin) {
		return 0, 0, ErrMarginOutOfRange
	}
	if amount < 0 {
		return 0, 0, ErrNegativeAmount
	}

	platformFee = round2(amount * margin / 100)
	counsellorAmount = round2(amount - platformFee)
	return platformFee, counsellorAmount, nil
}

// ResolveMargin returns the margin in force for a counsellor: the
// per-counsellor override when present, the global default otherwise.
func ResolveMargin(tx *gorm.DB, counsellorID uint) (float64, error) {
	var override models.CounsellorMargin
	err := tx.Where("counsellor_id = ?", counsellorID).First(&override).Error
	if err == nil {
		return override.Margin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	var settings models.PaymentSettings
	if err := tx.Order("id").First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return settings.GlobalMargin, nil
}
