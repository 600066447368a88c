package slots

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
	"gorm.io/gorm"
)

const (
	defaultHorizonDays = 14
	maxHorizonDays     = 60
	defaultSlotLength  = 60
)

type SlotHandler struct {
	db *gorm.DB
}

func NewSlotHandler(db *gorm.DB) *SlotHandler {
	return &SlotHandler{db: db}
}

func (h *SlotHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/slots", h.GetSlots).Methods("GET")
}

// GetSlots lists bookable slots for a counsellor over a date horizon.
func (h *SlotHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	counsellorID, err := strconv.ParseUint(query.Get("counsellor_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor_id", http.StatusBadRequest)
		return
	}

	now := time.Now()
	from := now
	if fromStr := query.Get("from"); fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			http.Error(w, "Invalid from date. Use YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	days := defaultHorizonDays
	if daysStr := query.Get("days"); daysStr != "" {
		days, err = strconv.Atoi(daysStr)
		if err != nil || days < 1 {
			http.Error(w, "Invalid days parameter", http.StatusBadRequest)
			return
		}
		if days > maxHorizonDays {
			days = maxHorizonDays
		}
	}

	length := defaultSlotLength
	if lengthStr := query.Get("length"); lengthStr != "" {
		length, err = strconv.Atoi(lengthStr)
		if err != nil || length < 15 || length > 240 {
			http.Error(w, "Invalid length parameter (15-240 minutes)", http.StatusBadRequest)
			return
		}
	}

	var week []models.WeeklyAvailability
	if err := h.db.Where("counsellor_id = ?", counsellorID).Find(&week).Error; err != nil {
		http.Error(w, "Error retrieving availability", http.StatusInternalServerError)
		return
	}

	var appointments []models.Appointment
	if err := h.db.Where(
		"counsellor_id = ? AND status IN ? AND appointment_date >= ? AND appointment_date < ?",
		counsellorID,
		[]string{models.StatusPending, models.StatusConfirmed},
		from.Format("2006-01-02"),
		from.AddDate(0, 0, days).Format("2006-01-02"),
	).Find(&appointments).Error; err != nil {
		http.Error(w, "Error retrieving appointments", http.StatusInternalServerError)
		return
	}

	generated := Generate(uint(counsellorID), week, appointments, from, days, length, now)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"slots": generated,
		"total": len(generated),
	})
}
