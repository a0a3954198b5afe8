package errors

import "fmt"

// AppError represents a custom application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error types. The gate codes are machine-readable: clients use
// them to decide between refreshing a token, forcing re-login, or redirecting
// to the renewal flow.
var (
	ErrDatabaseConnection = &AppError{Code: "DB_CONNECTION_FAILED", Message: "Failed to connect to database"}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid credentials"}
	ErrAccountLocked      = &AppError{Code: "ACCOUNT_LOCKED", Message: "Too many failed login attempts. Try again later."}
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Unauthorized access"}
	ErrValidationFailed   = &AppError{Code: "VALIDATION_FAILED", Message: "Validation failed"}

	ErrTokenMissing       = &AppError{Code: "TOKEN_MISSING", Message: "No authorization token provided"}
	ErrTokenInvalid       = &AppError{Code: "TOKEN_INVALID", Message: "Invalid token"}
	ErrTokenExpired       = &AppError{Code: "TOKEN_EXPIRED", Message: "Token has expired"}
	ErrSessionRevoked     = &AppError{Code: "SESSION_REVOKED", Message: "Session has been revoked. Please log in again."}
	ErrAccountDisabled    = &AppError{Code: "ACCOUNT_DISABLED", Message: "User account is disabled"}
	ErrTenantSuspended    = &AppError{Code: "TENANT_SUSPENDED", Message: "Account suspended. Contact support."}
	ErrTrialExpired       = &AppError{Code: "TRIAL_EXPIRED", Message: "Trial or account has expired"}
	ErrSubscriptionDue    = &AppError{Code: "SUBSCRIPTION_BLOCKED", Message: "Subscription payment required"}
	ErrMaintenanceActive  = &AppError{Code: "MAINTENANCE_MODE", Message: "Service is under maintenance. Please retry shortly."}
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
