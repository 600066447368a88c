package appointment

import (
	"time"

	"github.com/solacehq/solace-server/cmd/models"
	"gorm.io/gorm"
)

// SweepCompleted moves confirmed appointments whose end time has passed to
// completed. The status predicate lives in the WHERE clause, so a
// concurrent cancellation wins and a second sweep run changes nothing.
// Runs on a ticker and before list reads.
func SweepCompleted(db *gorm.DB, now time.Time) (int64, error) {
	today := now.Format("2006-01-02")
	clock := now.Format("15:04")

	result := db.Model(&models.Appointment{}).
		Where("status = ?", models.StatusConfirmed).
		Where("appointment_date < ? OR (appointment_date = ? AND end_time < ?)", today, today, clock).
		Update("status", models.StatusCompleted)
	return result.RowsAffected, result.Error
}
