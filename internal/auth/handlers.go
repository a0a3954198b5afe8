package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"billing-backend/internal/database"
	"billing-backend/internal/email"
	apperrors "billing-backend/internal/errors"
	"billing-backend/internal/metrics"
	"billing-backend/internal/models"
	"billing-backend/pkg/utils"
)

// Lockout is the package-level brute-force guard for the login endpoint.
var Lockout *LockoutGuard

// InitLockout wires the lockout guard to the shared database.
func InitLockout() {
	Lockout = NewLockoutGuard(database.DB)
	log.Println("✅ Login lockout guard initialized")
}

// HandleLogin handles the credential exchange. Order matters: lockout check
// comes before password verification, and a failure is recorded only after
// password verification fails.
func HandleLogin(c *gin.Context) {
	clientIP := utils.GetClientIP(c)
	start := time.Now()

	email := utils.GetValidatedString(c, "validated_email")
	password := utils.GetValidatedString(c, "validated_password")
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var req struct {
		RememberMe bool   `json:"remember_me,omitempty"`
		TOTPCode   string `json:"totp_code,omitempty"`
	}
	if raw, exists := c.Get("validated_raw_body"); exists {
		if bodyBytes, ok := raw.([]byte); ok && len(bodyBytes) > 0 {
			if err := json.Unmarshal(bodyBytes, &req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
				return
			}
		}
	}

	if locked, until := Lockout.IsLockedOut(email); locked {
		metrics.LoginAttempts.WithLabelValues("locked_out").Inc()
		respondLockedOut(c, until)
		return
	}

	var user models.User
	if err := database.DB.Where("email = ? AND active = ?", email, true).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Unknown emails still accrue attempts so probing behaves the
			// same as wrong passwords.
			Lockout.RecordFailedAttempt(email)
			metrics.LoginAttempts.WithLabelValues("failed").Inc()
			respondInvalidCredentials(c)
			return
		}
		utils.SendErrorResponse(c, http.StatusInternalServerError, &apperrors.AppError{
			Code:    "DATABASE_ERROR",
			Message: "Database error occurred",
			Details: "Failed to query user",
			Err:     err,
		})
		return
	}

	if !CheckPassword(password, user.Password) {
		Lockout.RecordFailedAttempt(email)
		metrics.LoginAttempts.WithLabelValues("failed").Inc()
		if locked, until := Lockout.IsLockedOut(email); locked {
			respondLockedOut(c, until)
			return
		}
		respondInvalidCredentials(c)
		return
	}

	if user.MFAEnabled {
		if req.TOTPCode == "" || user.MFASecret == "" || !ValidateTOTP(user.MFASecret, req.TOTPCode) {
			Lockout.RecordFailedAttempt(email)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":        "Invalid MFA verification code",
				"mfa_required": true,
			})
			return
		}
	}

	// Successful login always clears the lockout record.
	Lockout.ClearAttempts(email)
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	now := time.Now()
	user.LastLoginAt = &now
	if err := database.DB.Save(&user).Error; err != nil {
		log.Printf("Failed to record login time for user %s: %v", user.Email, err)
	}

	ttl := DefaultTokenTTL
	if req.RememberMe {
		ttl = RememberMeTokenTTL
	}
	token, expiry, err := GenerateToken(user, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	SetAuthCookie(c, token, expiry)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiry.Unix(),
		"role":       user.Role,
		"tenant_id":  user.TenantID,
		"name":       user.Name,
		"branch_ids": branchIDsForUser(user.ID),
	})
	log.Printf("LOGIN completed for %s from %s in %v", user.Email, clientIP, time.Since(start))
}

func respondLockedOut(c *gin.Context, until *time.Time) {
	appErr := &apperrors.AppError{
		Code:    apperrors.ErrAccountLocked.Code,
		Message: apperrors.ErrAccountLocked.Message,
	}
	body := gin.H{
		"error":   appErr.Code,
		"message": appErr.Message,
	}
	if until != nil {
		body["retry_after"] = fmt.Sprintf("%.0f seconds", time.Until(*until).Seconds())
		body["locked_until"] = until.Format(time.RFC3339)
		appErr.Details = fmt.Sprintf("Locked until %s", until.Format(time.RFC3339))
	}
	c.JSON(http.StatusTooManyRequests, body)
}

// respondInvalidCredentials sends an invalid credentials error response
func respondInvalidCredentials(c *gin.Context) {
	utils.SendErrorResponse(c, http.StatusUnauthorized, &apperrors.AppError{
		Code:    apperrors.ErrInvalidCredentials.Code,
		Message: apperrors.ErrInvalidCredentials.Message,
	})
}

// HandleRegister handles tenant signup: it creates the tenant, its owner
// user, and a trial subscription on the default plan.
func HandleRegister(c *gin.Context) {
	if os.Getenv("DISABLE_REGISTRATION") == "true" {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Signup is disabled. Please contact an administrator.",
		})
		return
	}

	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=8"`
		Name        string `json:"name" binding:"required"`
		CompanyName string `json:"company_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := NormalizeEmail(req.Email)

	var existingUser models.User
	if err := database.DB.Where("email = ?", email).First(&existingUser).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	var plan models.Plan
	trialDays := 14
	if err := database.DB.Where("active = ?", true).Order("price ASC").First(&plan).Error; err == nil && plan.TrialDays > 0 {
		trialDays = plan.TrialDays
	}
	trialEnd := time.Now().AddDate(0, 0, trialDays)

	tenant := models.Tenant{
		Name:        req.CompanyName,
		Status:      models.TenantTrial,
		TrialEndsAt: &trialEnd,
	}
	if err := database.DB.Create(&tenant).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
		return
	}

	user := models.User{
		Email:    email,
		Password: hashedPassword,
		Name:     req.Name,
		Role:     models.RoleOwner,
		TenantID: tenant.ID,
		Active:   true,
	}
	if err := database.DB.Create(&user).Error; err != nil {
		database.DB.Delete(&tenant)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	if plan.ID != 0 {
		subscription := models.Subscription{
			TenantID:    tenant.ID,
			PlanID:      plan.ID,
			Status:      models.SubscriptionTrial,
			TrialEndsAt: &trialEnd,
		}
		if err := database.DB.Create(&subscription).Error; err != nil {
			log.Printf("Failed to create trial subscription for tenant %d: %v", tenant.ID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Signup successful",
		"user":    gin.H{"id": user.ID, "name": user.Name, "email": user.Email, "role": user.Role},
		"tenant":  gin.H{"id": tenant.ID, "name": tenant.Name, "trial_ends_at": tenant.TrialEndsAt},
	})
}

// HandleLogout clears the auth cookie. Token invalidation happens through
// the session epoch, not a blacklist, so there is nothing to persist here.
func HandleLogout(c *gin.Context) {
	ClearAuthCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// HandleGetProfile retrieves the current user's profile
func HandleGetProfile(c *gin.Context) {
	userID := c.GetUint("user_id")
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":            user.ID,
			"name":          user.Name,
			"email":         user.Email,
			"role":          user.Role,
			"tenant_id":     user.TenantID,
			"mfa_enabled":   user.MFAEnabled,
			"last_login_at": user.LastLoginAt,
			"created_at":    user.CreatedAt,
		},
		"branch_ids": branchIDsForUser(user.ID),
	})
}

// HandleUpdateProfile updates the user's profile
func HandleUpdateProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	user.Name = req.Name
	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    gin.H{"id": user.ID, "name": user.Name, "email": user.Email},
	})
}

// HandleChangePassword changes the user's password and revokes every
// outstanding token by bumping the session epoch.
func HandleChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if !CheckPassword(req.CurrentPassword, user.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}

	hashedPassword, err := HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user.Password = hashedPassword
	user.SessionEpoch++
	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully. Please log in again."})
}

// HandleRequestPasswordReset sends a password reset link
func HandleRequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := database.DB.Where("email = ?", NormalizeEmail(req.Email)).First(&user).Error; err != nil {
		// Don't reveal if email exists or not for security
		c.JSON(http.StatusOK, gin.H{"message": "If the email exists, a reset link has been sent"})
		return
	}

	resetToken := GenerateToken64()
	tokenExpiry := time.Now().Add(1 * time.Hour)
	user.PasswordResetToken = resetToken
	user.PasswordResetExpiry = &tokenExpiry

	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate reset token"})
		return
	}

	go email.SendPasswordReset(user.Email, resetToken)

	c.JSON(http.StatusOK, gin.H{"message": "If the email exists, a reset link has been sent"})
}

// HandleResetPassword resets a user's password using a token
func HandleResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := database.DB.Where("password_reset_token = ?", req.Token).First(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
		return
	}

	if user.PasswordResetExpiry == nil || time.Now().After(*user.PasswordResetExpiry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password reset token has expired. Please request a new one."})
		return
	}

	hashedPassword, err := HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user.Password = hashedPassword
	user.PasswordResetToken = ""
	user.PasswordResetExpiry = nil
	user.SessionEpoch++

	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	// A successful reset clears any standing lockout.
	Lockout.ClearAttempts(user.Email)

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

// HandleSetupMFA initiates MFA setup by generating a TOTP secret
func HandleSetupMFA(c *gin.Context) {
	userID := c.GetUint("user_id")

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if user.MFAEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MFA is already enabled"})
		return
	}

	key, err := GenerateMFASecret(user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate MFA secret"})
		return
	}

	// Save secret (but don't enable MFA yet)
	user.MFASecret = key.Secret()
	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save MFA setup"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"qr_code": key.String(),
		"secret":  key.Secret(),
		"message": "Scan the QR code with your authenticator app, then verify with a code to enable MFA",
	})
}

// HandleEnableMFA verifies a TOTP code and enables MFA
func HandleEnableMFA(c *gin.Context) {
	var req struct {
		TOTPCode string `json:"totp_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if user.MFAEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MFA is already enabled"})
		return
	}
	if user.MFASecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MFA setup not initiated. Call /mfa/setup first"})
		return
	}

	if !ValidateTOTP(user.MFASecret, req.TOTPCode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid TOTP code"})
		return
	}

	user.MFAEnabled = true
	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable MFA"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "MFA enabled successfully"})
}

// GenerateToken64 generates a random 64-character token
func GenerateToken64() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func branchIDsForUser(userID uint) []uint {
	var assignments []models.UserBranch
	if err := database.DB.Where("user_id = ?", userID).Find(&assignments).Error; err != nil {
		log.Printf("Failed to load branch assignments for user %d: %v", userID, err)
		return []uint{}
	}
	ids := make([]uint, 0, len(assignments))
	for _, assignment := range assignments {
		ids = append(ids, assignment.BranchID)
	}
	return ids
}
