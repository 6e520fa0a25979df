package redeem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"paydesk/internal/common/events"
	"paydesk/internal/common/money"
)

// Store persists redeem requests. Balance mutations are atomic conditional
// updates: a losing concurrent writer gets ErrInsufficientBalance, never a
// corrupted balance.
type Store interface {
	Create(ctx context.Context, req *RedeemRequest) error
	Get(ctx context.Context, id string) (*RedeemRequest, error)

	// ListEligible returns open requests for an entity whose unreserved
	// balance covers the amount, ordered remaining DESC then created ASC.
	ListEligible(ctx context.Context, entityID string, amount money.Money, limit int) ([]*RedeemRequest, error)

	// ApplyPayment moves amount from remaining to paid. When fromHold is
	// true the same amount is simultaneously released from hold. Fails with
	// ErrInsufficientBalance if the guards do not hold.
	ApplyPayment(ctx context.Context, id string, amount money.Money, fromHold bool) (*RedeemRequest, error)

	// AdjustHold adds delta (possibly negative) to the hold, keeping
	// 0 <= hold <= remaining. Fails with ErrInsufficientBalance otherwise.
	AdjustHold(ctx context.Context, id string, delta money.Money) (*RedeemRequest, error)
}

// Service exposes redeem request operations
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a new redeem service
func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateRequest is the request to open a redeem request
type CreateRequest struct {
	EntityID string      `json:"entity_id" validate:"required"`
	PlayerID string      `json:"player_id" validate:"required"`
	Amount   money.Money `json:"amount" validate:"required"`
	Remarks  string      `json:"remarks"`
}

// Create opens a new redeem request
func (s *Service) Create(ctx context.Context, req CreateRequest) (*RedeemRequest, error) {
	id := ulid.Make().String()

	redeem, err := NewRedeemRequest(id, req.EntityID, req.PlayerID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("creating redeem request: %w", err)
	}
	redeem.Remarks = req.Remarks

	if err := s.store.Create(ctx, redeem); err != nil {
		return nil, fmt.Errorf("storing redeem request: %w", err)
	}

	if event, err := events.NewEvent(events.EventRedeemCreated, "redeem_request", redeem.ID, redeem); err == nil {
		_ = s.publisher.Publish(ctx, event)
	}

	s.logger.Info("redeem request created",
		"redeem_id", redeem.ID,
		"entity_id", redeem.EntityID,
		"amount", redeem.TotalAmount.AmountMinor,
		"currency", redeem.TotalAmount.Currency,
	)

	return redeem, nil
}

// Get retrieves a redeem request
func (s *Service) Get(ctx context.Context, id string) (*RedeemRequest, error) {
	return s.store.Get(ctx, id)
}

// ListEligibleForAmount returns redeem requests of the entity able to fund a
// PT recharge of the given amount, preferring the largest remaining balance
// and, on ties, the oldest request.
func (s *Service) ListEligibleForAmount(ctx context.Context, entityID string, amount money.Money) ([]*RedeemRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.store.ListEligible(ctx, entityID, amount, 50)
}

// PlaceHold reserves amount of the redeem request's balance for a matched
// PT recharge.
func (s *Service) PlaceHold(ctx context.Context, id string, amount money.Money) (*RedeemRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	redeem, err := s.store.AdjustHold(ctx, id, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("redeem hold placed",
		"redeem_id", id,
		"amount", amount.AmountMinor,
		"hold", redeem.HoldAmount.AmountMinor,
	)

	return redeem, nil
}

// ReleaseHold returns a previously placed hold to the unreserved balance,
// used when a matched recharge is rejected.
func (s *Service) ReleaseHold(ctx context.Context, id string, amount money.Money) (*RedeemRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	redeem, err := s.store.AdjustHold(ctx, id, money.New(-amount.AmountMinor, amount.Currency))
	if err != nil {
		return nil, err
	}

	s.logger.Info("redeem hold released",
		"redeem_id", id,
		"amount", amount.AmountMinor,
		"hold", redeem.HoldAmount.AmountMinor,
	)

	return redeem, nil
}

// RecordPayment records a direct payment against the unreserved balance.
// Not safely retryable on its own; callers deduplicate with an idempotency
// key.
func (s *Service) RecordPayment(ctx context.Context, id string, amount money.Money) (*RedeemRequest, error) {
	return s.recordPayment(ctx, id, amount, false)
}

// SettleHeldPayment records the payment that settles a previously held PT
// match, consuming the hold and the balance together.
func (s *Service) SettleHeldPayment(ctx context.Context, id string, amount money.Money) (*RedeemRequest, error) {
	return s.recordPayment(ctx, id, amount, true)
}

func (s *Service) recordPayment(ctx context.Context, id string, amount money.Money, fromHold bool) (*RedeemRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	redeem, err := s.store.ApplyPayment(ctx, id, amount, fromHold)
	if err != nil {
		return nil, err
	}

	data := events.RedeemPaymentData{
		RedeemID:       redeem.ID,
		EntityID:       redeem.EntityID,
		AmountMinor:    amount.AmountMinor,
		Currency:       string(amount.Currency),
		RemainingMinor: redeem.RemainingAmount.AmountMinor,
		Completed:      redeem.Status == StatusCompleted,
	}
	if event, err := events.NewEvent(events.EventRedeemPaymentRecorded, "redeem_request", redeem.ID, data); err == nil {
		_ = s.publisher.Publish(ctx, event)
	}
	if redeem.Status == StatusCompleted {
		if event, err := events.NewEvent(events.EventRedeemCompleted, "redeem_request", redeem.ID, data); err == nil {
			_ = s.publisher.Publish(ctx, event)
		}
	}

	s.logger.Info("redeem payment recorded",
		"redeem_id", redeem.ID,
		"amount", amount.AmountMinor,
		"remaining", redeem.RemainingAmount.AmountMinor,
		"from_hold", fromHold,
		"status", redeem.Status,
	)

	return redeem, nil
}
