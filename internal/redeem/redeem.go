// Package redeem manages player withdrawal requests. An open redeem request
// is the funding source for peer-funded (PT) recharges: matched recharges
// place holds on its balance and pay it down incrementally until nothing
// remains.
package redeem

import (
	"errors"
	"fmt"
	"time"

	"paydesk/internal/common/money"
)

// Domain errors
var (
	// ErrInsufficientBalance means the requested amount exceeds what the
	// redeem request can still fund.
	ErrInsufficientBalance = errors.New("insufficient redeem balance")
	// ErrInvalidAmount means the amount is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Status represents the funding status of a redeem request
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// RedeemRequest represents a player's withdrawal request.
//
// Balance bookkeeping invariants:
//
//	paid_amount + remaining_amount = total_amount
//	0 <= hold_amount <= remaining_amount
//
// hold_amount is the portion of the remaining balance reserved by matched
// but not yet settled PT recharges. Eligibility for new matches is
// therefore remaining_amount - hold_amount.
type RedeemRequest struct {
	ID              string      `json:"id"`
	EntityID        string      `json:"entity_id"`
	PlayerID        string      `json:"player_id"`
	TotalAmount     money.Money `json:"total_amount"`
	PaidAmount      money.Money `json:"paid_amount"`
	HoldAmount      money.Money `json:"hold_amount"`
	RemainingAmount money.Money `json:"remaining_amount"`
	Status          Status      `json:"status"`
	Remarks         string      `json:"remarks,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// NewRedeemRequest creates an open redeem request with the full amount unpaid
func NewRedeemRequest(id, entityID, playerID string, total money.Money) (*RedeemRequest, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if entityID == "" {
		return nil, errors.New("entity_id is required")
	}
	if playerID == "" {
		return nil, errors.New("player_id is required")
	}
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &RedeemRequest{
		ID:              id,
		EntityID:        entityID,
		PlayerID:        playerID,
		TotalAmount:     total,
		PaidAmount:      money.Zero(total.Currency),
		HoldAmount:      money.Zero(total.Currency),
		RemainingAmount: total,
		Status:          StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Available returns the portion of the remaining balance not reserved by holds
func (r *RedeemRequest) Available() money.Money {
	return r.RemainingAmount.MustSub(r.HoldAmount)
}

// CanFund reports whether a new PT match of the given amount fits the
// unreserved balance
func (r *RedeemRequest) CanFund(amount money.Money) bool {
	return r.Status == StatusOpen && r.Available().GreaterOrEqual(amount)
}

// CheckInvariant verifies the balance bookkeeping invariants
func (r *RedeemRequest) CheckInvariant() error {
	sum := r.PaidAmount.MustAdd(r.RemainingAmount)
	if !sum.Equal(r.TotalAmount) {
		return fmt.Errorf("redeem %s: paid %s + remaining %s != total %s",
			r.ID, r.PaidAmount, r.RemainingAmount, r.TotalAmount)
	}
	if r.HoldAmount.IsNegative() || r.HoldAmount.GreaterThan(r.RemainingAmount) {
		return fmt.Errorf("redeem %s: hold %s outside [0, remaining %s]",
			r.ID, r.HoldAmount, r.RemainingAmount)
	}
	return nil
}
