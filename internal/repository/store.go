package repository

import "context"

// Store is the persistence contract for financial requests and their ledger.
// Two implementations exist: Postgres for production and an in-memory store
// for tests.
type Store interface {
	// CreateRequest persists a new request in pending_budget at version 1 and
	// appends the submission ledger entry in the same atomic unit.
	CreateRequest(ctx context.Context, req *FinancialRequest) error

	// GetRequest loads one request by id.
	GetRequest(ctx context.Context, id string) (*FinancialRequest, error)

	// ListRequests returns requests matching the filter, newest first.
	ListRequests(ctx context.Context, filter ListFilter) ([]*FinancialRequest, error)

	// ApplyTransition performs the atomic check-and-write: it updates the
	// request's status, stage timestamp and version iff the stored version
	// still equals rec.ExpectedVersion, and appends exactly one ledger entry.
	// Returns CodeStaleState when the version no longer matches and performs
	// no mutation in that case.
	ApplyTransition(ctx context.Context, rec *TransitionRecord) (*FinancialRequest, error)

	// ListHistory returns the full ledger for a request in append order.
	ListHistory(ctx context.Context, requestID string) ([]*StatusHistoryEntry, error)
}
