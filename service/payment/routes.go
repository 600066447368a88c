package payment

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
	"github.com/solacehq/solace-server/cmd/utils"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	db    *gorm.DB
	locks *utils.KeyedMutex
}

func NewPaymentHandler(db *gorm.DB, locks *utils.KeyedMutex) *PaymentHandler {
	return &PaymentHandler{db: db, locks: locks}
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payment-settings", utils.AdminMiddleware(h.GetPaymentSettings)).Methods("GET")
	router.HandleFunc("/payment-settings", utils.AdminMiddleware(h.UpdatePaymentSettings)).Methods("PUT")
	router.HandleFunc("/counsellors/{id}/earnings", utils.AuthMiddleware(h.GetEarnings)).Methods("GET")
	router.HandleFunc("/withdrawals", utils.AuthMiddleware(h.RequestWithdrawal)).Methods("POST")
	router.HandleFunc("/withdrawals", utils.AdminMiddleware(h.GetWithdrawals)).Methods("GET")
	router.HandleFunc("/withdrawals/counsellor/{counsellorId}", utils.AuthMiddleware(h.GetCounsellorWithdrawals)).Methods("GET")
	router.HandleFunc("/withdrawals/{id}", utils.AdminMiddleware(h.ProcessWithdrawal)).Methods("PUT")
}

type settingsResponse struct {
	GlobalMargin      float64                   `json:"global_margin"`
	CounsellorMargins []models.CounsellorMargin `json:"counsellor_margins"`
}

func (h *PaymentHandler) GetPaymentSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.PaymentSettings
	if err := h.db.Order("id").FirstOrCreate(&settings).Error; err != nil {
		http.Error(w, "Error retrieving payment settings", http.StatusInternalServerError)
		return
	}

	var overrides []models.CounsellorMargin
	if err := h.db.Find(&overrides).Error; err != nil {
		http.Error(w, "Error retrieving counsellor margins", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settingsResponse{
		GlobalMargin:      settings.GlobalMargin,
		CounsellorMargins: overrides,
	})
}

// UpdatePaymentSettings validates and stores the global margin and the full
// set of per-counsellor overrides. Existing appointments keep the split
// computed when their payment completed.
func (h *PaymentHandler) UpdatePaymentSettings(w http.ResponseWriter, r *http.Request) {
	var update struct {
		GlobalMargin      *float64 `json:"global_margin"`
		CounsellorMargins []struct {
			CounsellorID uint    `json:"counsellor_id"`
			Margin       float64 `json:"margin"`
		} `json:"counsellor_margins"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if update.GlobalMargin != nil && !ValidMargin(*update.GlobalMargin) {
		http.Error(w, "global_margin must be between 0 and 50", http.StatusBadRequest)
		return
	}
	for _, m := range update.CounsellorMargins {
		if !ValidMargin(m.Margin) {
			http.Error(w, "counsellor margin must be between 0 and 50", http.StatusBadRequest)
			return
		}
	}

	tx := h.db.Begin()

	var settings models.PaymentSettings
	if err := tx.Order("id").FirstOrCreate(&settings).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error loading payment settings", http.StatusInternalServerError)
		return
	}
	if update.GlobalMargin != nil {
		settings.GlobalMargin = *update.GlobalMargin
		if err := tx.Save(&settings).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating payment settings", http.StatusInternalServerError)
			return
		}
	}

	if update.CounsellorMargins != nil {
		if err := tx.Where("1 = 1").Delete(&models.CounsellorMargin{}).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating counsellor margins", http.StatusInternalServerError)
			return
		}
		for _, m := range update.CounsellorMargins {
			override := models.CounsellorMargin{CounsellorID: m.CounsellorID, Margin: m.Margin}
			if err := tx.Create(&override).Error; err != nil {
				tx.Rollback()
				http.Error(w, "Error updating counsellor margins", http.StatusInternalServerError)
				return
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving payment settings", http.StatusInternalServerError)
		return
	}

	h.GetPaymentSettings(w, r)
}

// WithdrawableBalance is the counsellor's accumulated payout from completed
// and paid sessions minus everything already tied up in withdrawal
// requests that are pending, approved or processed.
func WithdrawableBalance(tx *gorm.DB, counsellorID uint) (float64, error) {
	var earned float64
	err := tx.Model(&models.Appointment{}).
		Where("counsellor_id = ? AND status = ? AND payment_status = ?",
			counsellorID, models.StatusCompleted, models.PaymentCompleted).
		Select("COALESCE(SUM(counsellor_amount), 0)").
		Scan(&earned).Error
	if err != nil {
		return 0, err
	}

	var held float64
	err = tx.Model(&models.WithdrawalRequest{}).
		Where("counsellor_id = ? AND status IN ?", counsellorID,
			[]string{models.WithdrawalPending, models.WithdrawalApproved, models.WithdrawalProcessed}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&held).Error
	if err != nil {
		return 0, err
	}

	return earned - held, nil
}

func (h *PaymentHandler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var total float64
	if err := h.db.Model(&models.Appointment{}).
		Where("counsellor_id = ? AND status = ? AND payment_status = ?",
			counsellorID, models.StatusCompleted, models.PaymentCompleted).
		Select("COALESCE(SUM(counsellor_amount), 0)").
		Scan(&total).Error; err != nil {
		http.Error(w, "Error computing earnings", http.StatusInternalServerError)
		return
	}

	// paid sessions that have not completed yet
	var pending float64
	if err := h.db.Model(&models.Appointment{}).
		Where("counsellor_id = ? AND status IN ? AND payment_status = ?",
			counsellorID, []string{models.StatusPending, models.StatusConfirmed}, models.PaymentCompleted).
		Select("COALESCE(SUM(counsellor_amount), 0)").
		Scan(&pending).Error; err != nil {
		http.Error(w, "Error computing earnings", http.StatusInternalServerError)
		return
	}

	var withdrawn float64
	if err := h.db.Model(&models.WithdrawalRequest{}).
		Where("counsellor_id = ? AND status = ?", counsellorID, models.WithdrawalProcessed).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&withdrawn).Error; err != nil {
		http.Error(w, "Error computing earnings", http.StatusInternalServerError)
		return
	}

	available, err := WithdrawableBalance(h.db, uint(counsellorID))
	if err != nil {
		http.Error(w, "Error computing balance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":     total,
		"pending":   pending,
		"withdrawn": withdrawn,
		"available": available,
	})
}

// RequestWithdrawal creates a pending withdrawal for the authenticated
// counsellor. The balance check and insert run under the counsellor's lock
// so two racing requests cannot both drain the same balance.
func (h *PaymentHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if request.Amount < models.MinimumWithdrawal {
		http.Error(w, "Withdrawal amount is below the minimum of 100", http.StatusUnprocessableEntity)
		return
	}

	var counsellor models.Counsellor
	if err := h.db.Where("user_id = ?", userID).First(&counsellor).Error; err != nil {
		http.Error(w, "Counsellor profile not found", http.StatusNotFound)
		return
	}

	h.locks.Lock(counsellor.ID)
	defer h.locks.Unlock(counsellor.ID)

	tx := h.db.Begin()

	balance, err := WithdrawableBalance(tx, counsellor.ID)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error computing balance", http.StatusInternalServerError)
		return
	}
	if request.Amount > balance {
		tx.Rollback()
		http.Error(w, "Withdrawal amount exceeds withdrawable balance", http.StatusUnprocessableEntity)
		return
	}

	withdrawal := models.WithdrawalRequest{
		CounsellorID: counsellor.ID,
		Amount:       request.Amount,
		Status:       models.WithdrawalPending,
	}
	if err := tx.Create(&withdrawal).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating withdrawal request", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing withdrawal request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(withdrawal)
}

func (h *PaymentHandler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.WithdrawalRequest{}).Preload("Counsellor")
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var withdrawals []models.WithdrawalRequest
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("created_at DESC").Find(&withdrawals).Error; err != nil {
		http.Error(w, "Error retrieving withdrawals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"withdrawals": withdrawals,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *PaymentHandler) GetCounsellorWithdrawals(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["counsellorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var withdrawals []models.WithdrawalRequest
	if err := h.db.Where("counsellor_id = ?", counsellorID).
		Order("created_at DESC").Find(&withdrawals).Error; err != nil {
		http.Error(w, "Error retrieving withdrawals", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withdrawals)
}

// ProcessWithdrawal records the admin's decision. Approved and processed
// need a transaction reference, rejected needs a reason; processed and
// rejected are terminal.
func (h *PaymentHandler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	withdrawalID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid withdrawal ID", http.StatusBadRequest)
		return
	}

	var decision struct {
		Status          string `json:"status"`
		TransactionID   string `json:"transaction_id"`
		RejectionReason string `json:"rejection_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch decision.Status {
	case models.WithdrawalApproved, models.WithdrawalProcessed:
		if decision.TransactionID == "" {
			http.Error(w, "transaction_id is required", http.StatusBadRequest)
			return
		}
	case models.WithdrawalRejected:
		if decision.RejectionReason == "" {
			http.Error(w, "rejection_reason is required", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "Invalid withdrawal status", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var withdrawal models.WithdrawalRequest
	if err := tx.First(&withdrawal, withdrawalID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Withdrawal request not found", http.StatusNotFound)
		return
	}

	if models.WithdrawalTerminal(withdrawal.Status) {
		tx.Rollback()
		http.Error(w, "Withdrawal request already finalized", http.StatusConflict)
		return
	}

	withdrawal.Status = decision.Status
	withdrawal.TransactionID = decision.TransactionID
	withdrawal.RejectionReason = decision.RejectionReason
	if models.WithdrawalTerminal(decision.Status) {
		now := time.Now()
		withdrawal.ProcessedAt = &now
	}

	if err := tx.Save(&withdrawal).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating withdrawal request", http.StatusInternalServerError)
		return
	}

	if decision.Status == models.WithdrawalProcessed {
		var counsellor models.Counsellor
		if err := tx.First(&counsellor, withdrawal.CounsellorID).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Counsellor not found", http.StatusNotFound)
			return
		}
		ledger := models.Transaction{
			UserID:    counsellor.UserID,
			Amount:    withdrawal.Amount,
			Method:    "Bank transfer",
			Purpose:   "Withdrawal payout",
			Reference: decision.TransactionID,
		}
		if ledger.Reference == "" {
			ledger.Reference = uuid.New().String()
		}
		if err := tx.Create(&ledger).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error recording payout", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error finalizing withdrawal decision", http.StatusInternalServerError)
		return
	}

	go h.notifyWithdrawalDecision(withdrawal)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(withdrawal)
}

func (h *PaymentHandler) notifyWithdrawalDecision(withdrawal models.WithdrawalRequest) {
	var counsellor models.Counsellor
	if err := h.db.Preload("User").First(&counsellor, withdrawal.CounsellorID).Error; err != nil || counsellor.User == nil {
		return
	}

	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	if smtpHost == "" {
		return
	}
	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return
	}

	body := "Your withdrawal request has been " + withdrawal.Status + "."
	if withdrawal.Status == models.WithdrawalRejected {
		body += " Reason: " + withdrawal.RejectionReason
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", counsellor.User.Email)
	m.SetHeader("Subject", "Withdrawal request update")
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	if err := d.DialAndSend(m); err != nil {
		log.Printf("Error sending withdrawal email: %v", err)
	}
}
