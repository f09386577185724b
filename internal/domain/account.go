package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "active"
	AccountStatusDeactivated AccountStatus = "deactivated"
)

type KYCStatus string

const (
	KYCStatusNotSubmitted KYCStatus = "not_submitted"
	KYCStatusPending      KYCStatus = "pending"
	KYCStatusApproved     KYCStatus = "approved"
	KYCStatusRejected     KYCStatus = "rejected"
)

// Account is the single source of truth for a customer's book balance.
// Balance is held in minor units (cents). AccountNumber is the user-facing
// routing identifier, assigned once at signup and never changed. Accounts
// are never deleted, only deactivated.
type Account struct {
	ID            uuid.UUID
	Email         string
	Name          string
	PasswordHash  string
	Role          Role
	Balance       int64
	Version       int64
	AccountNumber string
	Status        AccountStatus
	KYCStatus     KYCStatus
	CreatedAt     time.Time
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
