package repository

import "time"

// ── Domain types for the financial-request pipeline ──────────────────────────

// Status is the closed set of pipeline states. No other string ever reaches
// storage; the transition engine is the only writer.
type Status string

const (
	StatusPendingBudget     Status = "pending_budget"
	StatusPendingAccounting Status = "pending_accounting"
	StatusPendingCashier    Status = "pending_cashier"
	StatusCompleted         Status = "completed"
	StatusRejected          Status = "rejected"
)

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Pending reports whether the status is one of the pending_* stages.
func (s Status) Pending() bool {
	return s == StatusPendingBudget || s == StatusPendingAccounting || s == StatusPendingCashier
}

// Valid reports whether s is a member of the closed enum.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingBudget, StatusPendingAccounting, StatusPendingCashier,
		StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Intent is an approver action on a request.
type Intent string

const (
	IntentApprove Intent = "approve"
	IntentPay     Intent = "pay"
	IntentReject  Intent = "reject"
)

// Role names match the external role directory.
const (
	RoleRequester  = "requester"
	RoleBudget     = "budget"
	RoleAccounting = "accounting"
	RoleCashier    = "cashier"
)

// FinancialRequest is one disbursement request moving through the pipeline.
// Status, stage timestamps and version are mutated only by the transition
// engine; every other component reads.
type FinancialRequest struct {
	ID          string
	OwnerID     string
	Title       string
	RequestType string
	Amount      int64 // cents
	Description *string
	Status      Status
	Remarks     *string

	SubmittedAt          time.Time
	BudgetApprovedAt     *time.Time
	AccountingApprovedAt *time.Time
	CashierPaidAt        *time.Time
	RejectedAt           *time.Time

	// Version increments by exactly 1 per successful transition and drives
	// optimistic concurrency control.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusHistoryEntry is one immutable record in the per-request ledger.
// Entries are append-only; nothing ever updates or deletes one.
type StatusHistoryEntry struct {
	ID         string
	RequestID  string
	Actor      string
	FromStatus *Status // nil for the submission entry
	ToStatus   Status
	Remarks    *string
	OccurredAt time.Time
}

// TransitionRecord carries everything needed to apply one transition as a
// single atomic unit: the guarded request update plus the ledger append.
type TransitionRecord struct {
	RequestID       string
	Actor           string
	ExpectedVersion int64
	FromStatus      Status
	ToStatus        Status
	StampAt         time.Time
	Remarks         *string
}

// ListFilter narrows request listings.
type ListFilter struct {
	OwnerID *string
	Status  *Status
	Limit   int
	Offset  int
}
