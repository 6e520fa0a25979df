package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"paydesk/internal/common/database"
)

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*PaymentMethodAccount
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*PaymentMethodAccount)}
}

// Create inserts a new payment account
func (s *MemoryStore) Create(_ context.Context, account *PaymentMethodAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return database.ErrAlreadyExists
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// Get retrieves a payment account by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*PaymentMethodAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListByMethod lists accounts belonging to a payment method
func (s *MemoryStore) ListByMethod(_ context.Context, paymentMethodID string) ([]*PaymentMethodAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []*PaymentMethodAccount
	for _, a := range s.accounts {
		if a.PaymentMethodID == paymentMethodID {
			cp := *a
			accounts = append(accounts, &cp)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// SetStatus activates or deactivates an account
func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return database.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

var _ Store = (*MemoryStore)(nil)
