package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It reproduces the Postgres semantics exactly, including the atomic
// version-guarded write.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*FinancialRequest
	history  map[string][]*StatusHistoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*FinancialRequest),
		history:  make(map[string][]*StatusHistoryEntry),
	}
}

// CreateRequest stores the request and its submission ledger entry.
func (s *MemoryStore) CreateRequest(_ context.Context, req *FinancialRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.requests[req.ID] = cloneRequest(req)
	s.history[req.ID] = append(s.history[req.ID], &StatusHistoryEntry{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		Actor:      req.OwnerID,
		ToStatus:   req.Status,
		OccurredAt: req.SubmittedAt,
	})
	return nil
}

// GetRequest returns a copy of the stored request.
func (s *MemoryStore) GetRequest(_ context.Context, id string) (*FinancialRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, apperr.NotFound("financial_request", id)
	}
	return cloneRequest(req), nil
}

// ListRequests filters stored requests, newest first.
func (s *MemoryStore) ListRequests(_ context.Context, filter ListFilter) ([]*FinancialRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*FinancialRequest
	for _, req := range s.requests {
		if filter.OwnerID != nil && req.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	// Same page-size defaults as the SQL store.
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyTransition performs the check-and-write under the store mutex, which
// is the in-memory equivalent of the guarded UPDATE.
func (s *MemoryStore) ApplyTransition(_ context.Context, rec *TransitionRecord) (*FinancialRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[rec.RequestID]
	if !ok {
		return nil, apperr.NotFound("financial_request", rec.RequestID)
	}
	if req.Version != rec.ExpectedVersion {
		return nil, apperr.New(apperr.CodeStaleState, "request was modified by another transition; reload and retry")
	}

	req.Status = rec.ToStatus
	req.Version++
	req.UpdatedAt = time.Now().UTC()
	if rec.Remarks != nil {
		req.Remarks = rec.Remarks
	}

	stamp := rec.StampAt
	switch rec.ToStatus {
	case StatusPendingAccounting:
		req.BudgetApprovedAt = &stamp
	case StatusPendingCashier:
		req.AccountingApprovedAt = &stamp
	case StatusCompleted:
		req.CashierPaidAt = &stamp
	case StatusRejected:
		req.RejectedAt = &stamp
	}

	from := rec.FromStatus
	s.history[rec.RequestID] = append(s.history[rec.RequestID], &StatusHistoryEntry{
		ID:         uuid.NewString(),
		RequestID:  rec.RequestID,
		Actor:      rec.Actor,
		FromStatus: &from,
		ToStatus:   rec.ToStatus,
		Remarks:    rec.Remarks,
		OccurredAt: stamp,
	})

	return cloneRequest(req), nil
}

// ListHistory returns copies of the ledger entries in append order.
func (s *MemoryStore) ListHistory(_ context.Context, requestID string) ([]*StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[requestID]
	out := make([]*StatusHistoryEntry, len(entries))
	for i, e := range entries {
		copied := *e
		out[i] = &copied
	}
	return out, nil
}

func cloneRequest(req *FinancialRequest) *FinancialRequest {
	copied := *req
	return &copied
}
