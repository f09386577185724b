package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvestmentStatus string

const (
	InvestmentStatusActive  InvestmentStatus = "active"
	InvestmentStatusSold    InvestmentStatus = "sold"
	InvestmentStatusPending InvestmentStatus = "pending"
)

// Investment is one position held against an account. CostBasis is the cash
// debited at purchase; Adjustment accumulates admin-applied realized
// profit/loss. Book value and display P/L are always derived, never stored.
type Investment struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Category      string
	AssetName     string
	Symbol        string
	CostBasis     int64
	Adjustment    int64
	Quantity      *decimal.Decimal
	PurchasePrice *decimal.Decimal
	CurrentPrice  *decimal.Decimal
	Status        InvestmentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BookValue is the position's materialized amount: cost basis plus realized
// adjustments, floored at zero by SubtractLoss.
func (i *Investment) BookValue() int64 {
	return i.CostBasis + i.Adjustment
}

// UnrealizedPL is (current - purchase) x quantity, nil when either price or
// the quantity is unknown.
func (i *Investment) UnrealizedPL() *decimal.Decimal {
	if i.Quantity == nil || i.PurchasePrice == nil || i.CurrentPrice == nil {
		return nil
	}
	pl := i.CurrentPrice.Sub(*i.PurchasePrice).Mul(*i.Quantity)
	return &pl
}
