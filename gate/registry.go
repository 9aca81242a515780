package gate

import (
	"context"
	"sort"
	"sync"
)

// PendingStore holds requests parked for human review. An entry is removed
// by exactly one successful Take; implementations must make Take atomic so
// a race between two resolvers yields one winner and "not found" for the
// rest.
type PendingStore interface {
	Put(ctx context.Context, req ActionRequest) error
	Take(ctx context.Context, actionID string) (ActionRequest, bool, error)
	List(ctx context.Context) ([]ActionRequest, error)
}

// ApprovalStore holds resolved approvals keyed by action id. Entries are
// written once and never mutated; expiry is checked lazily by readers.
type ApprovalStore interface {
	Put(ctx context.Context, approval HumanApproval) error
	Get(ctx context.Context, actionID string) (HumanApproval, bool, error)
}

// MemoryPendingStore is the single-process registry. State vanishes on
// restart; use the SQLite stores when approvals must outlive the process.
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]ActionRequest
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{pending: make(map[string]ActionRequest)}
}

func (s *MemoryPendingStore) Put(_ context.Context, req ActionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[req.ID] = req
	return nil
}

// Take removes and returns the entry under one mutex hold, which is what
// makes concurrent approve/reject resolve at most once.
func (s *MemoryPendingStore) Take(_ context.Context, actionID string) (ActionRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[actionID]
	if !ok {
		return ActionRequest{}, false, nil
	}
	delete(s.pending, actionID)
	return req, true, nil
}

func (s *MemoryPendingStore) List(_ context.Context) ([]ActionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActionRequest, 0, len(s.pending))
	for _, req := range s.pending {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type MemoryApprovalStore struct {
	mu       sync.Mutex
	approved map[string]HumanApproval
}

func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{approved: make(map[string]HumanApproval)}
}

func (s *MemoryApprovalStore) Put(_ context.Context, approval HumanApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[approval.ActionID] = approval
	return nil
}

func (s *MemoryApprovalStore) Get(_ context.Context, actionID string) (HumanApproval, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	approval, ok := s.approved[actionID]
	return approval, ok, nil
}
