package domain

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventTypeLoanCreated          = "loan.created"
	EventTypePoolFunded           = "pool.funded"
	EventTypePoolWithdrawn        = "pool.withdrawn"
	EventTypePoolFinalized        = "pool.finalized"
	EventTypePoolReleased         = "pool.released"
	EventTypePoolPaymentAccepted  = "pool.payment_accepted"
	EventTypePoolRepaid           = "pool.repaid"
	EventTypePoolClaimed          = "pool.claimed"
	EventTypeAssetTransferCreated = "asset.transfer_created"
)

// Aggregate types
const (
	AggregateTypeLoan     = "loan"
	AggregateTypePool     = "pool"
	AggregateTypeTransfer = "transfer"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewOutboxEvent builds an unpublished event. payload is one of the typed
// payload structs below.
func NewOutboxEvent(id, aggregateType, aggregateID, eventType string, payload any, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       toPayload(payload),
		CreatedAt:     now,
	}
}

func toPayload(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// LoanCreatedEvent payload
type LoanCreatedEvent struct {
	LoanID      uint64 `json:"loan_id"`
	Requester   string `json:"requester"`
	PoolAddress string `json:"pool_address"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	PeriodDays  uint64 `json:"period_days"`
}

// PoolLenderEvent payload, used for funded, withdrawn and claimed events.
type PoolLenderEvent struct {
	PoolAddress string `json:"pool_address"`
	Lender      string `json:"lender"`
	Amount      string `json:"amount"`
}

// PoolFinalizedEvent payload
type PoolFinalizedEvent struct {
	PoolAddress    string `json:"pool_address"`
	Principal      string `json:"principal"`
	InterestRate   string `json:"interest_rate"`
	InterestAmount string `json:"interest_amount"`
	AmountOwed     string `json:"amount_owed"`
}

// PoolReleasedEvent payload
type PoolReleasedEvent struct {
	PoolAddress string `json:"pool_address"`
	Requester   string `json:"requester"`
	Amount      string `json:"amount"`
}

// PoolPaymentEvent payload
type PoolPaymentEvent struct {
	PoolAddress  string `json:"pool_address"`
	Credited     string `json:"credited"`
	Excess       string `json:"excess"`
	AmountRepaid string `json:"amount_repaid"`
	AmountOwed   string `json:"amount_owed"`
}

// AssetTransferCreatedEvent payload
type AssetTransferCreatedEvent struct {
	TransferID string `json:"transfer_id"`
	Asset      string `json:"asset"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
}
