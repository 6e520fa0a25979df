package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// PublisherFunc adapts a function to the Publisher interface
type PublisherFunc func(ctx context.Context, event *Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// NopPublisher discards all events
func NopPublisher() Publisher {
	return PublisherFunc(func(context.Context, *Event) error { return nil })
}

// Event types for the recharge pipeline
const (
	EventRechargeCreated        = "recharge.created"
	EventRechargeApproved       = "recharge.finance.approved"
	EventRechargeRejected       = "recharge.finance.rejected"
	EventRechargeProofSubmitted = "recharge.proof.submitted"
	EventRechargeVerified       = "recharge.verified"
	EventRechargeVerifyRejected = "recharge.verification.rejected"
	EventRechargeCompleted      = "recharge.completed"
	EventRechargeOpsRejected    = "recharge.operations.rejected"

	EventRedeemCreated         = "redeem.created"
	EventRedeemPaymentRecorded = "redeem.payment.recorded"
	EventRedeemCompleted       = "redeem.completed"
)

// RechargeStatusData is the data carried by every recharge lifecycle event
type RechargeStatusData struct {
	RequestID          string `json:"request_id"`
	EntityID           string `json:"entity_id"`
	PlayerID           string `json:"player_id"`
	TagType            string `json:"tag_type,omitempty"`
	EntityStatus       string `json:"entity_status"`
	FinanceStatus      string `json:"finance_status"`
	VerificationStatus string `json:"verification_status"`
	OperationsStatus   string `json:"operations_status"`
	AmountMinor        int64  `json:"amount_minor"`
	Currency           string `json:"currency"`
	ActorID            string `json:"actor_id,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// RedeemPaymentData is the data for redeem.payment.recorded events
type RedeemPaymentData struct {
	RedeemID       string `json:"redeem_id"`
	EntityID       string `json:"entity_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	RemainingMinor int64  `json:"remaining_minor"`
	Completed      bool   `json:"completed"`
}
