package domain

import (
	"time"

	"github.com/google/uuid"
)

type CardType string

const (
	CardTypePlatinum CardType = "platinum"
	CardTypeGold     CardType = "gold"
	CardTypeBlack    CardType = "black"
)

func (t CardType) IsValid() bool {
	switch t {
	case CardTypePlatinum, CardTypeGold, CardTypeBlack:
		return true
	}
	return false
}

// CreditLimitFor is the fixed per-tier limit in minor units.
func CreditLimitFor(t CardType) int64 {
	switch t {
	case CardTypePlatinum:
		return 10_000_00
	case CardTypeGold:
		return 20_000_00
	case CardTypeBlack:
		return 50_000_00
	default:
		return 0
	}
}

type CardNetwork string

const (
	CardNetworkVisa       CardNetwork = "visa"
	CardNetworkMastercard CardNetwork = "mastercard"
)

func (n CardNetwork) IsValid() bool {
	return n == CardNetworkVisa || n == CardNetworkMastercard
}

type CardStatus string

const (
	CardStatusActive      CardStatus = "active"
	CardStatusDeactivated CardStatus = "deactivated"
)

// CreditCard tracks a credit line independent of the cash balance.
// Invariant: 0 <= AvailableCredit <= CreditLimit.
type CreditCard struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	CardType        CardType
	Network         CardNetwork
	CreditLimit     int64
	AvailableCredit int64
	Status          CardStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CardRequestStatus string

const (
	CardRequestStatusPending  CardRequestStatus = "pending"
	CardRequestStatusApproved CardRequestStatus = "approved"
	CardRequestStatusRejected CardRequestStatus = "rejected"
)

// CardRequest is a user's application for a credit card. One approved
// request produces exactly one card.
type CardRequest struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	CardType    CardType
	Network     CardNetwork
	Status      CardRequestStatus
	AdminNotes  string
	ProcessedBy *uuid.UUID
	CardID      *uuid.UUID
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
