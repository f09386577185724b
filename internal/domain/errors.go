package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUnknownDestination = errors.New("destination account number does not exist")
	ErrAlreadyProcessed   = errors.New("request already processed")
	ErrUnauthorized       = errors.New("admin privileges required")
	ErrBusy               = errors.New("account busy, retry")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrSelfTransfer       = errors.New("transfer destination is the source account")
	ErrEmailTaken         = errors.New("email already registered")
	ErrVersionConflict    = errors.New("optimistic lock conflict")
	ErrKYCNotApproved     = errors.New("kyc approval required")
	ErrKYCPending         = errors.New("kyc already submitted")
	ErrInvestmentClosed   = errors.New("investment is not active")
	ErrCreditExceeded     = errors.New("insufficient available credit")
	ErrCardDeactivated    = errors.New("card deactivated")
)
