// Package notify publishes user-visible outcome events (deposit decisions,
// admin adjustments, incoming transfers, card and investment actions) to a
// topic exchange. Delivery and templating belong to the notification
// service consuming the exchange; the ledger only emits.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventDepositApproved   = "deposit.approved"
	EventDepositRejected   = "deposit.rejected"
	EventDepositRequested  = "deposit.requested"
	EventTransferReceived  = "transfer.received"
	EventBalanceAdjusted   = "balance.adjusted"
	EventKYCDecided        = "kyc.decided"
	EventAccountStatus     = "account.status"
	EventCardIssued        = "card.issued"
	EventCardRejected      = "card.rejected"
	EventCardUpdated       = "card.updated"
	EventInvestmentUpdated = "investment.updated"
)

// Event describes one user-visible change. Type doubles as the routing key.
type Event struct {
	Type       string         `json:"type"`
	AccountID  uuid.UUID      `json:"account_id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Recorder is the in-memory Publisher used by tests and by deployments
// without a broker configured.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) EventsOfType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
