package service

import (
	"context"
	"strings"
	"time"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
	"github.com/scholarfin/be-fund-requests/internal/logger"
	"github.com/scholarfin/be-fund-requests/internal/notify"
	"github.com/scholarfin/be-fund-requests/internal/repository"
)

// Actor is the authenticated identity attempting a transition, with the
// roles the directory reported at action time.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EventPublisher hands a committed transition to the background delivery
// path. Publishing is synchronous enqueueing only; delivery is not.
type EventPublisher interface {
	Publish(ctx context.Context, event notify.Event, req *repository.FinancialRequest)
}

// TransitionResult is returned to the caller after a successful transition.
type TransitionResult struct {
	Status  repository.Status `json:"status"`
	Version int64             `json:"version"`
}

// transitions is the single table every state change is checked against.
// A (status, intent) pair absent from this table is never applied.
var transitions = map[repository.Status]map[repository.Intent]repository.Status{
	repository.StatusPendingBudget: {
		repository.IntentApprove: repository.StatusPendingAccounting,
		repository.IntentReject:  repository.StatusRejected,
	},
	repository.StatusPendingAccounting: {
		repository.IntentApprove: repository.StatusPendingCashier,
		repository.IntentReject:  repository.StatusRejected,
	},
	repository.StatusPendingCashier: {
		repository.IntentPay:    repository.StatusCompleted,
		repository.IntentReject: repository.StatusRejected,
	},
}

// stageRole maps each pending stage to the role that holds it.
var stageRole = map[repository.Status]string{
	repository.StatusPendingBudget:     repository.RoleBudget,
	repository.StatusPendingAccounting: repository.RoleAccounting,
	repository.StatusPendingCashier:    repository.RoleCashier,
}

// TransitionEngine validates and applies role-gated state changes. It is the
// only component that mutates a request's status, timestamps or version.
type TransitionEngine struct {
	store     repository.Store
	publisher EventPublisher
	log       *logger.Logger
}

// NewTransitionEngine creates a TransitionEngine.
func NewTransitionEngine(store repository.Store, publisher EventPublisher, log *logger.Logger) *TransitionEngine {
	return &TransitionEngine{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// AttemptTransition applies one intent against the request's current stage.
//
// The read, the expected-version comparison and the write (status + stage
// timestamp + ledger append) form one atomic unit in the store; a lost race
// surfaces as CodeStaleState with no mutation. On success the post-transition
// state is returned and the notification event is handed to the background
// delivery path. Validation errors never publish an event.
func (e *TransitionEngine) AttemptTransition(
	ctx context.Context,
	requestID string,
	actor Actor,
	intent repository.Intent,
	expectedVersion int64,
	remarks *string,
) (*TransitionResult, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status.Terminal() {
		return nil, apperr.New(apperr.CodeAlreadyFinal, "request is already in a final state")
	}

	// The engine re-checks the role even though the API boundary already
	// did; a UI offering a disallowed action must still be rejected here.
	required := stageRole[req.Status]
	if !actor.HasRole(required) {
		return nil, apperr.New(apperr.CodeForbidden, "actor does not hold the role for the current stage")
	}

	next, ok := transitions[req.Status][intent]
	if !ok {
		return nil, apperr.New(apperr.CodeForbidden, "intent is not valid for the current stage")
	}

	if intent == repository.IntentReject {
		if remarks == nil || strings.TrimSpace(*remarks) == "" {
			return nil, apperr.New(apperr.CodeInvalidRemarks, "reject requires non-empty remarks")
		}
	}

	updated, err := e.store.ApplyTransition(ctx, &repository.TransitionRecord{
		RequestID:       requestID,
		Actor:           actor.ID,
		ExpectedVersion: expectedVersion,
		FromStatus:      req.Status,
		ToStatus:        next,
		StampAt:         time.Now().UTC(),
		Remarks:         remarks,
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("request_id", requestID).
		Str("actor", actor.ID).
		Str("intent", string(intent)).
		Str("from", string(req.Status)).
		Str("to", string(updated.Status)).
		Int64("version", updated.Version).
		Msg("transition applied")

	e.publisher.Publish(ctx, notify.NewEvent(updated, actor.ID, remarks), updated)

	return &TransitionResult{Status: updated.Status, Version: updated.Version}, nil
}

// RequiredRole returns the role holding the request's current stage, used by
// the API boundary for its own pre-check.
func RequiredRole(status repository.Status) (string, bool) {
	role, ok := stageRole[status]
	return role, ok
}
