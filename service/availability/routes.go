package availability

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
	"github.com/solacehq/solace-server/cmd/utils"
	"github.com/solacehq/solace-server/service/slots"
	"gorm.io/gorm"
)

type AvailabilityHandler struct {
	db *gorm.DB
}

func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
	return &AvailabilityHandler{db: db}
}

func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/counsellors/{counsellorId}/availability", h.GetWeeklyAvailability).Methods("GET")
	router.HandleFunc("/counsellors/{counsellorId}/availability", utils.AuthMiddleware(h.PutWeeklyAvailability)).Methods("PUT")
}

type dayUpdate struct {
	DayOfWeek int    `json:"day_of_week"`
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *AvailabilityHandler) GetWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["counsellorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var week []models.WeeklyAvailability
	if err := h.db.Where("counsellor_id = ?", counsellorID).
		Order("day_of_week").Find(&week).Error; err != nil {
		http.Error(w, "Error retrieving availability", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(week)
}

// PutWeeklyAvailability replaces the counsellor's weekly template in one
// transaction. Only the owning counsellor (or an admin) may change it.
func (h *AvailabilityHandler) PutWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["counsellorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var counsellor models.Counsellor
	if err := h.db.First(&counsellor, counsellorID).Error; err != nil {
		http.Error(w, "Counsellor not found", http.StatusNotFound)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if counsellor.UserID != userID && utils.GetRoleFromContext(r) != models.RoleAdmin {
		http.Error(w, "Only the owning counsellor may change availability", http.StatusForbidden)
		return
	}

	var days []dayUpdate
	if err := json.NewDecoder(r.Body).Decode(&days); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(days) > 7 {
		http.Error(w, "At most 7 day entries allowed", http.StatusBadRequest)
		return
	}

	seen := make(map[int]bool)
	for _, day := range days {
		if day.DayOfWeek < 0 || day.DayOfWeek > 6 {
			http.Error(w, "day_of_week must be 0 (Sunday) to 6 (Saturday)", http.StatusBadRequest)
			return
		}
		if seen[day.DayOfWeek] {
			http.Error(w, "Duplicate day_of_week entry", http.StatusBadRequest)
			return
		}
		seen[day.DayOfWeek] = true

		if !day.Enabled {
			continue
		}
		start, err := slots.ParseClock(day.StartTime)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		end, err := slots.ParseClock(day.EndTime)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if start >= end {
			http.Error(w, "End time must be after start time", http.StatusBadRequest)
			return
		}
	}

	tx := h.db.Begin()

	if err := tx.Where("counsellor_id = ?", counsellorID).
		Unscoped().Delete(&models.WeeklyAvailability{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating availability", http.StatusInternalServerError)
		return
	}

	week := make([]models.WeeklyAvailability, 0, len(days))
	for _, day := range days {
		week = append(week, models.WeeklyAvailability{
			CounsellorID: uint(counsellorID),
			DayOfWeek:    day.DayOfWeek,
			Enabled:      day.Enabled,
			StartTime:    day.StartTime,
			EndTime:      day.EndTime,
		})
	}
	if len(week) > 0 {
		if err := tx.Create(&week).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error saving availability", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving availability", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(week)
}
