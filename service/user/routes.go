package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
	"github.com/solacehq/solace-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes sets up all user-related routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/users", utils.AdminMiddleware(h.GetUsers)).Methods("GET")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.GetUser)).Methods("GET")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.UpdateUser)).Methods("PUT")
	router.HandleFunc("/users/{id}", utils.AdminMiddleware(h.DeleteUser)).Methods("DELETE")
	router.HandleFunc("/user/verify", h.verifyUser).Methods("POST")
	router.HandleFunc("/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/reset-password", h.handlePasswordResetRequest).Methods("POST")
	router.HandleFunc("/reset-password/{userId}/confirm", h.handlePasswordReset).Methods("POST")
	router.HandleFunc("/verify-reset-token", h.handleVerifyResetToken).Methods("POST")
	router.HandleFunc("/counsellors", h.GetCounsellors).Methods("GET")
	router.HandleFunc("/counsellors/{id}", h.GetCounsellor).Methods("GET")
	router.HandleFunc("/counsellors/{id}", utils.AuthMiddleware(h.UpdateCounsellor)).Methods("PUT")
	router.HandleFunc("/counsellors/verify/{id}", utils.AdminMiddleware(h.VerifyCounsellor)).Methods("POST")
	router.HandleFunc("/counsellors/search", h.SearchCounsellors).Methods("GET")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", loginRequest.Email).First(&user)
	if result.Error != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := utils.GenerateToken(user.ID, user.Role, 24*time.Hour)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	// Save refresh token so it can be invalidated later
	if err := saveRefreshToken(h.db, user.ID, refreshToken); err != nil {
		http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message":       "Login successful",
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user_id":       user.ID,
		"role":          user.Role,
	}

	// If user is a counsellor, fetch and include counsellor_id
	if user.Role == models.RoleCounsellor {
		var counsellor models.Counsellor
		result := h.db.Where("user_id = ?", user.ID).First(&counsellor)
		if result.Error == nil {
			response["counsellor_id"] = counsellor.ID
		} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "Error fetching counsellor profile", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		FullName       string  `json:"full_name"`
		Email          string  `json:"email"`
		Password       string  `json:"password"`
		Phone          string  `json:"phone"`
		Role           string  `json:"role"`
		Specialization string  `json:"specialization"`
		Bio            string  `json:"bio"`
		VideoFee       float64 `json:"video_fee"`
		ChatFee        float64 `json:"chat_fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if registerRequest.FullName == "" || registerRequest.Email == "" || registerRequest.Password == "" || registerRequest.Phone == "" || registerRequest.Role == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if registerRequest.Role != models.RoleClient && registerRequest.Role != models.RoleCounsellor {
		http.Error(w, "Role must be 'client' or 'counsellor'", http.StatusBadRequest)
		return
	}

	// Validate unique constraints
	var existingUser models.User
	if result := h.db.Where("email = ? OR phone = ?", registerRequest.Email, registerRequest.Phone).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}

		var errorMessage string
		if existingUser.Email == registerRequest.Email && existingUser.Phone == registerRequest.Phone {
			errorMessage = "Email and phone number are already in use"
		} else if existingUser.Email == registerRequest.Email {
			errorMessage = "Email is already in use"
		} else {
			errorMessage = "Phone number is already in use"
		}
		log.Printf("Registration attempt with duplicate %s", errorMessage)
		http.Error(w, errorMessage, http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	verificationCode := fmt.Sprintf("%06d", rand.Intn(1000000))
	verificationExpiry := time.Now().Add(15 * time.Minute)

	tx := h.db.Begin()

	user := models.User{
		FullName:              registerRequest.FullName,
		Email:                 registerRequest.Email,
		PasswordHash:          string(passwordHash),
		Phone:                 registerRequest.Phone,
		Role:                  registerRequest.Role,
		EmailVerificationCode: verificationCode,
		VerificationExpiry:    verificationExpiry,
	}

	if err := tx.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			log.Printf("Unique constraint violation during user creation: %v", err)
			tx.Rollback()
			http.Error(w, "Email or phone number is already in use", http.StatusConflict)
			return
		}
		tx.Rollback()
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	var counsellorID uint
	if registerRequest.Role == models.RoleCounsellor {
		counsellor := models.Counsellor{
			UserID:         user.ID,
			Specialization: registerRequest.Specialization,
			Bio:            registerRequest.Bio,
			VideoFee:       registerRequest.VideoFee,
			ChatFee:        registerRequest.ChatFee,
		}

		if err := tx.Create(&counsellor).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating counsellor profile", http.StatusInternalServerError)
			return
		}

		counsellorID = counsellor.ID
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := sendVerificationEmail(user.Email, verificationCode); err != nil {
			log.Printf("Error sending verification email: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"message": "User registered successfully. Please check your email for verification code.",
		"user_id": user.ID,
	}
	if counsellorID != 0 {
		response["counsellor_id"] = counsellorID
	}
	json.NewEncoder(w).Encode(response)
}

// sendVerificationEmail sends a verification email with the 6-digit code
func sendVerificationEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Email Verification Code")
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s. Ignore this email if you did not request a verification code.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}

func (h *Handler) verifyUser(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", request.Email).First(&user).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	// Check that the code matches and is not expired
	if user.EmailVerificationCode != request.Code || time.Now().After(user.VerificationExpiry) {
		http.Error(w, "Invalid or expired verification code", http.StatusUnauthorized)
		return
	}

	user.EmailVerified = true
	user.EmailVerificationCode = ""
	user.VerificationExpiry = time.Time{}

	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Email verified successfully",
	})
}

// GetUsers retrieves all users
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	result := h.db.Find(&users)
	if result.Error != nil {
		http.Error(w, "Error retrieving users", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// GetUser retrieves a specific user by ID
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Preload("Counsellor").First(&user, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving user", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateUser lets a user update their own profile details
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	requesterID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)
	if requesterID != uint(userID) && role != models.RoleAdmin {
		http.Error(w, "You can only update your own profile", http.StatusForbidden)
		return
	}

	var updateRequest struct {
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if result := h.db.First(&user, userID); result.Error != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if updateRequest.FullName != "" {
		user.FullName = updateRequest.FullName
	}
	if updateRequest.Phone != "" {
		user.Phone = updateRequest.Phone
	}

	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "User updated successfully",
		"user":    user,
	})
}

// DeleteUser removes a user account
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.User{}, userID)
	if result.Error != nil {
		http.Error(w, "Error deleting user", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User deleted successfully",
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	logger := log.New(os.Stdout, "RefreshToken: ", log.Ldate|log.Ltime|log.Lshortfile)

	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
		logger.Printf("Decoding error: %v", err)
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var user models.User
	if err := tx.Where("refresh_token = ?", refreshRequest.RefreshToken).First(&user).Error; err != nil {
		tx.Rollback()
		logger.Printf("Invalid refresh token for request: %v", refreshRequest.RefreshToken)
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	if user.RefreshTokenExpiredAt.Before(time.Now()) {
		tx.Rollback()
		logger.Printf("Expired refresh token for user ID: %d", user.ID)
		http.Error(w, "Refresh token expired", http.StatusUnauthorized)
		return
	}

	newAccessToken, err := utils.GenerateToken(user.ID, user.Role, 24*time.Hour)
	if err != nil {
		tx.Rollback()
		logger.Printf("Failed to generate access token for user ID: %d, error: %v", user.ID, err)
		http.Error(w, "Error generating new token", http.StatusInternalServerError)
		return
	}

	// Rotate the refresh token
	newRefreshToken, err := generateRefreshToken(user.ID)
	if err != nil {
		tx.Rollback()
		logger.Printf("Failed to generate refresh token for user ID: %d, error: %v", user.ID, err)
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	updateResult := tx.Model(&user).Updates(models.User{
		Refresh:               newRefreshToken,
		RefreshTokenExpiredAt: time.Now().Add(30 * 24 * time.Hour),
	})

	if updateResult.Error != nil {
		tx.Rollback()
		logger.Printf("Failed to update refresh token for user ID: %d, error: %v", user.ID, updateResult.Error)
		http.Error(w, "Error updating refresh token", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		logger.Printf("Transaction commit error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.Printf("Successful token refresh for user ID: %d", user.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  newAccessToken,
		"refresh_token": newRefreshToken,
	})
}

func generateRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	// HMAC ties the token to the user
	mac := hmac.New(sha256.New, []byte(os.Getenv("SECRET_KEY")))
	mac.Write([]byte(fmt.Sprintf("%d", userID)))
	mac.Write(b)

	signature := mac.Sum(nil)
	return fmt.Sprintf("%d_%x_%x", userID, b, signature), nil
}

func saveRefreshToken(db *gorm.DB, userID uint, refreshToken string) error {
	expirationTime := time.Now().Add(30 * 24 * time.Hour)
	return db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"refresh_token":            refreshToken,
		"refresh_token_expired_at": expirationTime,
	}).Error
}

func (h *Handler) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var resetRequest struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if resetRequest.Email == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", resetRequest.Email).First(&user)
	if result.Error != nil {
		// Keep response vague for security
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "If an account exists, a reset code will be sent to your email",
		})
		return
	}

	resetToken := fmt.Sprintf("%06d", rand.Intn(1000000))

	tx := h.db.Begin()

	// Delete any existing reset tokens for this user
	if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error processing reset request", http.StatusInternalServerError)
		return
	}

	passwordResetToken := models.PasswordResetToken{
		UserID:    user.ID,
		Token:     resetToken,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}

	if err := tx.Create(&passwordResetToken).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating reset token", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error processing reset request", http.StatusInternalServerError)
		return
	}

	if err := sendVerificationEmail(user.Email, resetToken); err != nil {
		http.Error(w, "Error sending email", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If an account exists, a reset code will be sent to your email",
	})
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var resetRequest struct {
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(resetRequest.Password) < 6 {
		http.Error(w, "Password must be at least 6 characters long", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(resetRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		tx.Rollback()
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user.PasswordHash = string(passwordHash)
	if err := tx.Save(&user).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating password", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error processing password reset", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Password reset successful",
	})
}

type TokenVerificationRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (h *Handler) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req TokenVerificationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		// Deliberately vague response to avoid revealing user existence
		http.Error(w, "Invalid email or token", http.StatusBadRequest)
		return
	}

	var resetToken models.PasswordResetToken
	if err := h.db.Where("user_id = ? AND token = ?", user.ID, req.Token).First(&resetToken).Error; err != nil {
		http.Error(w, "Invalid email or token", http.StatusBadRequest)
		return
	}

	if time.Now().After(resetToken.ExpiresAt) {
		http.Error(w, "Token expired", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Token is valid",
		"user_id": user.ID,
	})
}

// GetCounsellors lists counsellors with optional verification filter
func (h *Handler) GetCounsellors(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "Database connection not initialized", http.StatusInternalServerError)
		return
	}

	verified := r.URL.Query().Get("verified")
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize := 20

	query := h.db.Model(&models.Counsellor{}).Preload("User")

	if verified != "" {
		isVerified, parseErr := strconv.ParseBool(verified)
		if parseErr != nil {
			http.Error(w, "Invalid value for 'verified'", http.StatusBadRequest)
			return
		}
		query = query.Where("verified = ?", isVerified)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting counsellors", http.StatusInternalServerError)
		return
	}

	var counsellors []models.Counsellor
	result := query.Offset((page - 1) * pageSize).Limit(pageSize).Order("average_rating DESC").Find(&counsellors)
	if result.Error != nil {
		http.Error(w, "Error retrieving counsellors", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(counsellors))
	for _, counsellor := range counsellors {
		response = append(response, counsellorResponse(counsellor))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"counsellors": response,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func counsellorResponse(counsellor models.Counsellor) map[string]interface{} {
	data := map[string]interface{}{
		"ID":             counsellor.ID,
		"CreatedAt":      counsellor.CreatedAt,
		"UpdatedAt":      counsellor.UpdatedAt,
		"UserID":         counsellor.UserID,
		"Specialization": counsellor.Specialization,
		"Bio":            counsellor.Bio,
		"Verified":       counsellor.Verified,
		"VideoFee":       counsellor.VideoFee,
		"ChatFee":        counsellor.ChatFee,
		"AverageRating":  counsellor.AverageRating,
		"TotalRatings":   counsellor.TotalRatings,
	}
	if counsellor.User != nil {
		data["User"] = map[string]interface{}{
			"FullName":      counsellor.User.FullName,
			"Email":         counsellor.User.Email,
			"Phone":         counsellor.User.Phone,
			"Role":          counsellor.User.Role,
			"EmailVerified": counsellor.User.EmailVerified,
			"Status":        counsellor.User.Status,
		}
	}
	return data
}

// GetCounsellor retrieves a specific counsellor by ID with full details
func (h *Handler) GetCounsellor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var counsellor models.Counsellor
	result := h.db.Preload("User").First(&counsellor, counsellorID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "Counsellor not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving counsellor", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(counsellorResponse(counsellor))
}

// UpdateCounsellor allows a counsellor to update their profile and session fees
func (h *Handler) UpdateCounsellor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var updateRequest struct {
		Specialization string   `json:"specialization"`
		Bio            string   `json:"bio"`
		VideoFee       *float64 `json:"video_fee"`
		ChatFee        *float64 `json:"chat_fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var counsellor models.Counsellor
	if result := h.db.First(&counsellor, counsellorID); result.Error != nil {
		http.Error(w, "Counsellor not found", http.StatusNotFound)
		return
	}

	requesterID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)
	if counsellor.UserID != requesterID && role != models.RoleAdmin {
		http.Error(w, "You can only update your own profile", http.StatusForbidden)
		return
	}

	if updateRequest.Specialization != "" {
		counsellor.Specialization = updateRequest.Specialization
	}
	if updateRequest.Bio != "" {
		counsellor.Bio = updateRequest.Bio
	}
	if updateRequest.VideoFee != nil {
		if *updateRequest.VideoFee < 0 {
			http.Error(w, "Fees cannot be negative", http.StatusBadRequest)
			return
		}
		counsellor.VideoFee = *updateRequest.VideoFee
	}
	if updateRequest.ChatFee != nil {
		if *updateRequest.ChatFee < 0 {
			http.Error(w, "Fees cannot be negative", http.StatusBadRequest)
			return
		}
		counsellor.ChatFee = *updateRequest.ChatFee
	}

	if err := h.db.Save(&counsellor).Error; err != nil {
		http.Error(w, "Error updating counsellor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "Counsellor updated successfully",
		"counsellor": counsellor,
	})
}

// VerifyCounsellor handles counsellor verification by an admin
func (h *Handler) VerifyCounsellor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	counsellorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid counsellor ID", http.StatusBadRequest)
		return
	}

	var verifyRequest struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&verifyRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var counsellor models.Counsellor
	result := h.db.First(&counsellor, counsellorID)
	if result.Error != nil {
		http.Error(w, "Counsellor not found", http.StatusNotFound)
		return
	}

	counsellor.Verified = verifyRequest.Verified
	if err := h.db.Save(&counsellor).Error; err != nil {
		http.Error(w, "Error updating counsellor verification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  "Counsellor verification updated",
		"verified": counsellor.Verified,
	})
}

// SearchCounsellors allows searching counsellors by various criteria
func (h *Handler) SearchCounsellors(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	specialization := r.URL.Query().Get("specialization")
	verified := r.URL.Query().Get("verified")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 10

	dbQuery := h.db.Model(&models.Counsellor{}).Preload("User")

	if query != "" {
		searchQuery := "%" + query + "%"
		dbQuery = dbQuery.Where(
			"specialization LIKE ? OR bio LIKE ?",
			searchQuery, searchQuery,
		)
	}

	if specialization != "" {
		dbQuery = dbQuery.Where("specialization LIKE ?", "%"+specialization+"%")
	}

	if verified != "" {
		isVerified, _ := strconv.ParseBool(verified)
		dbQuery = dbQuery.Where("verified = ?", isVerified)
	}

	var total int64
	dbQuery.Count(&total)

	var counsellors []models.Counsellor
	result := dbQuery.Offset((page - 1) * pageSize).Limit(pageSize).Find(&counsellors)

	if result.Error != nil {
		http.Error(w, "Error searching counsellors", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(counsellors))
	for _, counsellor := range counsellors {
		response = append(response, counsellorResponse(counsellor))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"counsellors": response,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}
