package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "Admin privileges required"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds  = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrAccountDeactivated = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_DEACTIVATED", "Account is deactivated"}
	ErrAccountNotFound    = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrUnknownDestination = &AppError{http.StatusUnprocessableEntity, "UNKNOWN_DESTINATION_ACCOUNT", "No account matches the destination number"}
	ErrSelfTransfer       = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrAlreadyProcessed   = &AppError{http.StatusConflict, "ALREADY_PROCESSED", "Request was already processed"}
	ErrEmailTaken         = &AppError{http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists"}
	ErrVersionConflict    = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrBusy               = &AppError{http.StatusConflict, "BUSY", "Account is busy, please retry"}
	ErrInvalidAmount      = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a positive value with at most two decimal places"}
	ErrKYCNotApproved     = &AppError{http.StatusUnprocessableEntity, "KYC_NOT_APPROVED", "Identity verification is required first"}
	ErrKYCPending         = &AppError{http.StatusConflict, "KYC_PENDING", "Identity verification is already pending or approved"}
	ErrInvestmentClosed   = &AppError{http.StatusUnprocessableEntity, "INVESTMENT_CLOSED", "Investment is no longer active"}
	ErrCreditExceeded     = &AppError{http.StatusUnprocessableEntity, "CREDIT_LIMIT_EXCEEDED", "Credit limit exceeded"}
	ErrCardDeactivated    = &AppError{http.StatusUnprocessableEntity, "CARD_DEACTIVATED", "Card is deactivated"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
