package redeem

import (
	"context"
	"sort"
	"sync"
	"time"

	"paydesk/internal/common/database"
	"paydesk/internal/common/money"
)

// MemoryStore is an in-memory Store used in tests and local development.
// A single mutex serializes balance mutations, giving the same all-or-nothing
// guard semantics as the conditional SQL updates.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*RedeemRequest
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*RedeemRequest)}
}

// Create inserts a new redeem request
func (s *MemoryStore) Create(_ context.Context, req *RedeemRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return database.ErrAlreadyExists
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// Get retrieves a redeem request by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*RedeemRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// ListEligible returns open requests whose unreserved balance covers the
// amount, largest remaining balance first, oldest first on ties.
func (s *MemoryStore) ListEligible(_ context.Context, entityID string, amount money.Money, limit int) ([]*RedeemRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*RedeemRequest
	for _, req := range s.requests {
		if req.EntityID != entityID || req.Status != StatusOpen {
			continue
		}
		if req.TotalAmount.Currency != amount.Currency {
			continue
		}
		if req.Available().GreaterOrEqual(amount) {
			cp := *req
			eligible = append(eligible, &cp)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i], eligible[j]
		if ri.RemainingAmount.AmountMinor != rj.RemainingAmount.AmountMinor {
			return ri.RemainingAmount.AmountMinor > rj.RemainingAmount.AmountMinor
		}
		return ri.CreatedAt.Before(rj.CreatedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// ApplyPayment moves amount from remaining to paid under the lock
func (s *MemoryStore) ApplyPayment(_ context.Context, id string, amount money.Money, fromHold bool) (*RedeemRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if req.Status != StatusOpen || req.TotalAmount.Currency != amount.Currency {
		return nil, ErrInsufficientBalance
	}

	if fromHold {
		if req.HoldAmount.LessThan(amount) {
			return nil, ErrInsufficientBalance
		}
	} else {
		if req.Available().LessThan(amount) {
			return nil, ErrInsufficientBalance
		}
	}

	now := time.Now().UTC()
	req.PaidAmount = req.PaidAmount.MustAdd(amount)
	req.RemainingAmount = req.RemainingAmount.MustSub(amount)
	if fromHold {
		req.HoldAmount = req.HoldAmount.MustSub(amount)
	}
	if req.RemainingAmount.IsZero() {
		req.Status = StatusCompleted
		req.CompletedAt = &now
	}
	req.UpdatedAt = now

	cp := *req
	return &cp, nil
}

// AdjustHold adds delta to the hold under the lock
func (s *MemoryStore) AdjustHold(_ context.Context, id string, delta money.Money) (*RedeemRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if req.Status != StatusOpen || req.TotalAmount.Currency != delta.Currency {
		return nil, ErrInsufficientBalance
	}

	newHold := req.HoldAmount.AmountMinor + delta.AmountMinor
	if newHold < 0 || newHold > req.RemainingAmount.AmountMinor {
		return nil, ErrInsufficientBalance
	}

	req.HoldAmount = money.New(newHold, delta.Currency)
	req.UpdatedAt = time.Now().UTC()

	cp := *req
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
