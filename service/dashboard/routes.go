package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
	"github.com/solacehq/solace-server/cmd/utils"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type DashboardStats struct {
	TotalClients          int64   `json:"total_clients"`
	TotalCounsellors      int64   `json:"total_counsellors"`
	TotalAppointments     int64   `json:"total_appointments"`
	CompletedAppointments int64   `json:"completed_appointments"`
	UpcomingAppointments  int64   `json:"upcoming_appointments"`
	GrossVolume           float64 `json:"gross_volume"`
	PlatformRevenue       float64 `json:"platform_revenue"`
	PendingWithdrawals    int64   `json:"pending_withdrawals"`
}

// RegisterRoutes registers dashboard-related routes with Gorilla Mux
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	dashboardRouter := router.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("/stats", utils.AdminMiddleware(h.GetDashboardStats)).Methods("GET")
}

func (h *DashboardHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats

	h.db.Model(&models.User{}).Where("role = ?", models.RoleClient).Count(&stats.TotalClients)
	h.db.Model(&models.Counsellor{}).Count(&stats.TotalCounsellors)
	h.db.Model(&models.Appointment{}).Count(&stats.TotalAppointments)
	h.db.Model(&models.Appointment{}).
		Where("status = ?", models.StatusCompleted).
		Count(&stats.CompletedAppointments)

	today := time.Now().Format("2006-01-02")
	h.db.Model(&models.Appointment{}).
		Where("status IN ? AND appointment_date >= ?", []string{models.StatusPending, models.StatusConfirmed}, today).
		Count(&stats.UpcomingAppointments)

	// Gross volume and platform cut come from settled payments only
	h.db.Model(&models.Appointment{}).
		Where("payment_status = ?", models.PaymentCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.GrossVolume)
	h.db.Model(&models.Appointment{}).
		Where("payment_status = ?", models.PaymentCompleted).
		Select("COALESCE(SUM(platform_fee), 0)").
		Scan(&stats.PlatformRevenue)

	h.db.Model(&models.WithdrawalRequest{}).
		Where("status = ?", models.WithdrawalPending).
		Count(&stats.PendingWithdrawals)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
