package resource

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
	"github.com/solacehq/solace-server/cmd/utils"
	"github.com/solacehq/solace-server/service/notifications"
	"gorm.io/gorm"
)

// ResourceHandler manages session materials counsellors share after appointments.
type ResourceHandler struct {
	db *gorm.DB
}

func NewResourceHandler(db *gorm.DB) *ResourceHandler {
	return &ResourceHandler{db: db}
}

func (h *ResourceHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/appointments/{id}/resources", utils.AuthMiddleware(h.CreateResource)).Methods("POST")
	router.HandleFunc("/appointments/{id}/resources", utils.AuthMiddleware(h.GetAppointmentResources)).Methods("GET")
	router.HandleFunc("/resources/client/{clientId}", utils.AuthMiddleware(h.GetClientResources)).Methods("GET")
	router.HandleFunc("/resources/{id}", utils.AuthMiddleware(h.DeleteResource)).Methods("DELETE")
}

// CreateResource lets the counsellor attach follow-up material to a completed session
func (h *ResourceHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appointmentID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Link    string `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	var appointment models.Appointment
	if err := h.db.Preload("Counsellor").First(&appointment, appointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving appointment", http.StatusInternalServerError)
		}
		return
	}

	if appointment.Counsellor == nil || appointment.Counsellor.UserID != userID {
		http.Error(w, "Only the session counsellor can attach resources", http.StatusForbidden)
		return
	}

	if appointment.Status != models.StatusCompleted {
		http.Error(w, "Resources can only be attached to completed sessions", http.StatusUnprocessableEntity)
		return
	}

	sessionResource := models.SessionResource{
		AppointmentID: appointment.ID,
		CounsellorID:  appointment.CounsellorID,
		ClientID:      appointment.ClientID,
		Title:         request.Title,
		Content:       request.Content,
		Link:          request.Link,
	}

	if err := h.db.Create(&sessionResource).Error; err != nil {
		http.Error(w, "Error saving resource", http.StatusInternalServerError)
		return
	}

	go notifications.PushToUser(h.db, appointment.ClientID, "New session material",
		"Your counsellor shared new material from your session", map[string]interface{}{
			"resource_id": strconv.FormatUint(uint64(sessionResource.ID), 10),
		})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Resource created successfully",
		"resource": sessionResource,
	})
}

// GetAppointmentResources lists the materials attached to one appointment
func (h *ResourceHandler) GetAppointmentResources(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	appointmentID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var appointment models.Appointment
	if err := h.db.Preload("Counsellor").First(&appointment, appointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}

	role := utils.GetRoleFromContext(r)
	isParty := appointment.ClientID == userID ||
		(appointment.Counsellor != nil && appointment.Counsellor.UserID == userID)
	if !isParty && role != models.RoleAdmin {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}

	var resources []models.SessionResource
	if err := h.db.Where("appointment_id = ?", appointmentID).Order("created_at DESC").Find(&resources).Error; err != nil {
		http.Error(w, "Error retrieving resources", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"resources": resources,
		"total":     len(resources),
	})
}

// GetClientResources lists all materials shared with a client across sessions
func (h *ResourceHandler) GetClientResources(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	clientID, err := strconv.ParseUint(vars["clientId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	role := utils.GetRoleFromContext(r)
	if uint(clientID) != userID && role != models.RoleAdmin {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 20

	query := h.db.Model(&models.SessionResource{}).Where("client_id = ?", clientID)

	var total int64
	query.Count(&total)

	var resources []models.SessionResource
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Order("created_at DESC").Find(&resources).Error; err != nil {
		http.Error(w, "Error retrieving resources", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"resources":   resources,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// DeleteResource lets the owning counsellor remove material they shared
func (h *ResourceHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resourceID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid resource ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var sessionResource models.SessionResource
	if err := h.db.First(&sessionResource, resourceID).Error; err != nil {
		http.Error(w, "Resource not found", http.StatusNotFound)
		return
	}

	var counsellor models.Counsellor
	if err := h.db.Where("user_id = ?", userID).First(&counsellor).Error; err != nil || counsellor.ID != sessionResource.CounsellorID {
		role := utils.GetRoleFromContext(r)
		if role != models.RoleAdmin {
			http.Error(w, "Only the owning counsellor can delete this resource", http.StatusForbidden)
			return
		}
	}

	if err := h.db.Delete(&sessionResource).Error; err != nil {
		http.Error(w, "Error deleting resource", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Resource deleted successfully",
	})
}
