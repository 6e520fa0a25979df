package recharge

import (
	"context"
	"sort"
	"sync"

	"paydesk/internal/common/database"
)

// MemoryStore is an in-memory Store used in tests and local development.
// A single mutex serializes updates, giving the same first-writer-wins
// semantics as the conditional SQL update.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*RechargeRequest
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*RechargeRequest)}
}

// Create inserts a new recharge request
func (s *MemoryStore) Create(_ context.Context, req *RechargeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return database.ErrAlreadyExists
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// Get retrieves a recharge request by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*RechargeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// Update persists req only if the stored request still matches expected
func (s *MemoryStore) Update(_ context.Context, req *RechargeRequest, expected StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[req.ID]
	if !ok {
		return database.ErrNotFound
	}
	if stored.Snapshot() != expected {
		return ErrPreconditionFailed
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// ListByEntity returns the entity's recharge requests, newest first
func (s *MemoryStore) ListByEntity(_ context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	return s.filter(entityID, limit, func(*RechargeRequest) bool { return true }, byCreatedDesc)
}

// ListFinanceQueue returns requests awaiting a finance decision, oldest first
func (s *MemoryStore) ListFinanceQueue(_ context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	return s.filter(entityID, limit, func(r *RechargeRequest) bool {
		return r.FinanceStatus == FinancePending && r.EntityStatus == EntityPending
	}, byCreatedAsc)
}

// ListVerificationQueue returns PT requests with submitted proof awaiting
// verification, oldest first.
func (s *MemoryStore) ListVerificationQueue(_ context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	return s.filter(entityID, limit, func(r *RechargeRequest) bool {
		return r.TagType == TagPT &&
			r.VerificationStatus == VerificationPending &&
			r.EntityStatus == EntityPaymentSubmitted
	}, byCreatedAsc)
}

// ListOperationsQueue returns verified requests awaiting fulfillment,
// oldest first.
func (s *MemoryStore) ListOperationsQueue(_ context.Context, entityID string, limit int) ([]*RechargeRequest, error) {
	return s.filter(entityID, limit, func(r *RechargeRequest) bool {
		return r.OperationsStatus == OpsWaitingOperations || r.OperationsStatus == OpsProcessing
	}, byCreatedAsc)
}

func (s *MemoryStore) filter(entityID string, limit int, keep func(*RechargeRequest) bool, less func(a, b *RechargeRequest) bool) ([]*RechargeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*RechargeRequest
	for _, req := range s.requests {
		if req.EntityID != entityID || !keep(req) {
			continue
		}
		cp := *req
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func byCreatedAsc(a, b *RechargeRequest) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func byCreatedDesc(a, b *RechargeRequest) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

var _ Store = (*MemoryStore)(nil)
