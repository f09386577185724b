package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryTypeDeposit          EntryType = "deposit"
	EntryTypeWithdrawal       EntryType = "withdrawal"
	EntryTypeTransferIn       EntryType = "transfer_in"
	EntryTypeTransferOut      EntryType = "transfer_out"
	EntryTypeAdminCredit      EntryType = "admin_credit"
	EntryTypeAdminDebit       EntryType = "admin_debit"
	EntryTypeInvestmentBuy    EntryType = "investment_buy"
	EntryTypeInvestmentAdjust EntryType = "investment_adjust"
)

func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeDeposit, EntryTypeWithdrawal, EntryTypeTransferIn, EntryTypeTransferOut,
		EntryTypeAdminCredit, EntryTypeAdminDebit, EntryTypeInvestmentBuy, EntryTypeInvestmentAdjust:
		return true
	}
	return false
}

// Direction is the sign each entry type contributes to the cash balance.
// investment_adjust records value movement inside a position wrapper and
// never touches cash, so it carries sign zero.
func (t EntryType) Direction() int64 {
	switch t {
	case EntryTypeDeposit, EntryTypeTransferIn, EntryTypeAdminCredit:
		return 1
	case EntryTypeWithdrawal, EntryTypeTransferOut, EntryTypeAdminDebit, EntryTypeInvestmentBuy:
		return -1
	default:
		return 0
	}
}

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusRejected  EntryStatus = "rejected"
)

// LedgerEntry is the append-only record of one balance-affecting event.
// Entries are immutable once completed; corrections are new entries.
// TransferID links the transfer_out/transfer_in pair of a peer transfer.
// RequestID carries the client idempotency key that caused the entry.
type LedgerEntry struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	EntryType     EntryType
	Status        EntryStatus
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	CounterpartID *uuid.UUID
	TransferID    *uuid.UUID
	ActorID       *uuid.UUID
	Description   string
	RequestID     *string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// SignedAmount is the entry's contribution to Σ(entries) == balance.
// Entries that never completed contribute nothing.
func (e *LedgerEntry) SignedAmount() int64 {
	if e.Status != EntryStatusCompleted {
		return 0
	}
	return e.EntryType.Direction() * e.Amount
}
