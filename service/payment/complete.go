package payment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/solacehq/solace-server/cmd/models"
	"gorm.io/gorm"
)

// ErrAlreadyCompleted means another writer completed this appointment's
// payment first; the split must not run twice.
var ErrAlreadyCompleted = errors.New("payment already completed")

// CompleteAppointmentPayment moves an appointment's payment to completed
// exactly once, capturing the margin in force right now and persisting the
// split and invoice number. Must run inside the caller's transaction. The
// guard is a compare-and-set on payment_status, so concurrent webhook
// deliveries or admin updates compute the split at most once.
func CompleteAppointmentPayment(tx *gorm.DB, appointment *models.Appointment) error {
	margin, err := ResolveMargin(tx, appointment.CounsellorID)
	if err != nil {
		return err
	}

	platformFee, counsellorAmount, err := ComputeSplit(appointment.Amount, margin)
	if err != nil {
		return err
	}

	invoice := fmt.Sprintf("INV-%s", uuid.New().String())

	result := tx.Model(&models.Appointment{}).
		Where("id = ? AND payment_status = ?", appointment.ID, models.PaymentPending).
		Updates(map[string]interface{}{
			"payment_status":    models.PaymentCompleted,
			"platform_fee":      platformFee,
			"counsellor_amount": counsellorAmount,
			"margin_used":       margin,
			"invoice_number":    invoice,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyCompleted
	}

	// payment confirms a pending booking; cancelled stays cancelled
	if err := tx.Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appointment.ID, models.StatusPending).
		Update("status", models.StatusConfirmed).Error; err != nil {
		return err
	}

	ledger := models.Transaction{
		UserID:    appointment.ClientID,
		Amount:    appointment.Amount,
		Method:    "Paystack",
		Purpose:   "Session payment",
		Reference: appointment.PaymentRef,
	}
	if err := tx.Create(&ledger).Error; err != nil {
		return err
	}

	appointment.PaymentStatus = models.PaymentCompleted
	appointment.PlatformFee = platformFee
	appointment.CounsellorAmount = counsellorAmount
	appointment.MarginUsed = margin
	appointment.InvoiceNumber = invoice
	return nil
}
