package testutil

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalpath/ledger-service/internal/domain"
)

var accountNumberSeq atomic.Int64

// NextAccountNumber hands out deterministic unique account numbers so
// fixtures never collide within a test database.
func NextAccountNumber() string {
	return fmt.Sprintf("CP%08d", accountNumberSeq.Add(1))
}

func SeedAccount(t *testing.T, db *sql.DB, email string, balance int64) *domain.Account {
	t.Helper()
	return seed(t, db, email, domain.RoleUser, balance, domain.KYCStatusApproved)
}

func SeedAccountWithKYC(t *testing.T, db *sql.DB, email string, balance int64, kyc domain.KYCStatus) *domain.Account {
	t.Helper()
	return seed(t, db, email, domain.RoleUser, balance, kyc)
}

func SeedAdmin(t *testing.T, db *sql.DB, email string) *domain.Account {
	t.Helper()
	return seed(t, db, email, domain.RoleAdmin, 0, domain.KYCStatusApproved)
}

func seed(t *testing.T, db *sql.DB, email string, role domain.Role, balance int64, kyc domain.KYCStatus) *domain.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	a := &domain.Account{
		ID:            uuid.New(),
		Email:         email,
		Name:          "Test Account",
		PasswordHash:  string(hash),
		Role:          role,
		Balance:       balance,
		Version:       1,
		AccountNumber: NextAccountNumber(),
		Status:        domain.AccountStatusActive,
		KYCStatus:     kyc,
		CreatedAt:     time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO accounts (id, email, name, password_hash, role, balance, version,
			account_number, status, kyc_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Role, a.Balance, a.Version,
		a.AccountNumber, a.Status, a.KYCStatus, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return a
}

func GetBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance %s: %v", accountID, err)
	}
	return balance
}

func DeactivateAccount(t *testing.T, db *sql.DB, accountID uuid.UUID) {
	t.Helper()

	if _, err := db.Exec(`UPDATE accounts SET status = 'deactivated' WHERE id = $1`, accountID); err != nil {
		t.Fatalf("deactivate account %s: %v", accountID, err)
	}
}

func CountLedgerEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for %s: %v", accountID, err)
	}
	return count
}

// SumSignedEntries recomputes the conservation sum the way the audit query
// does, for asserting Σ(signed entries) == balance in tests.
func SumSignedEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var sum int64
	err := db.QueryRow(
		`SELECT COALESCE(SUM(CASE
			WHEN entry_type IN ('deposit', 'transfer_in', 'admin_credit') THEN amount
			WHEN entry_type IN ('withdrawal', 'transfer_out', 'admin_debit', 'investment_buy') THEN -amount
			ELSE 0
		END), 0)
		FROM ledger_entries WHERE account_id = $1 AND status = 'completed'`,
		accountID,
	).Scan(&sum)
	if err != nil {
		t.Fatalf("sum signed entries for %s: %v", accountID, err)
	}
	return sum
}
