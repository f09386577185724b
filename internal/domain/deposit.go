package domain

import (
	"time"

	"github.com/google/uuid"
)

type DepositStatus string

const (
	DepositStatusPending  DepositStatus = "pending"
	DepositStatusApproved DepositStatus = "approved"
	DepositStatusRejected DepositStatus = "rejected"
)

// DepositRequest is the pending admin-approval record created when a user
// deposits to their own account number (external funding simulation).
// Deposits routed to another user's account number execute immediately as
// transfers and never produce one of these rows.
type DepositRequest struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Amount          int64
	SourceBankName  string
	SourceBankLast4 string
	DestinationNum  string
	Status          DepositStatus
	AdminNotes      string
	ProcessedBy     *uuid.UUID
	RequestID       *string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}
