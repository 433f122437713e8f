package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
	"github.com/scholarfin/be-fund-requests/internal/logger"
	"github.com/scholarfin/be-fund-requests/internal/notify"
	"github.com/scholarfin/be-fund-requests/internal/repository"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *capturePublisher) Publish(_ context.Context, event notify.Event, _ *repository.FinancialRequest) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *capturePublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

func newTestPipeline(t *testing.T) (*repository.MemoryStore, *capturePublisher, *RequestService, *TransitionEngine) {
	t.Helper()
	store := repository.NewMemoryStore()
	pub := &capturePublisher{}
	log := logger.Nop()
	return store, pub, NewRequestService(store, pub, log), NewTransitionEngine(store, pub, log)
}

func submit(t *testing.T, svc *RequestService, owner string) *repository.FinancialRequest {
	t.Helper()
	req, err := svc.Create(context.Background(), CreateRequestInput{
		OwnerID:     owner,
		Title:       "Conference travel reimbursement",
		RequestType: "disbursement",
		Amount:      125000,
	})
	require.NoError(t, err)
	return req
}

var (
	budgetActor     = Actor{ID: "budget-1", Roles: []string{repository.RoleBudget}}
	accountingActor = Actor{ID: "accounting-1", Roles: []string{repository.RoleAccounting}}
	cashierActor    = Actor{ID: "cashier-1", Roles: []string{repository.RoleCashier}}
)

func TestCreateStartsPipeline(t *testing.T) {
	_, pub, svc, _ := newTestPipeline(t)

	req := submit(t, svc, "owner-1")

	assert.Equal(t, repository.StatusPendingBudget, req.Status)
	assert.EqualValues(t, 1, req.Version)
	assert.False(t, req.SubmittedAt.IsZero())

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, req.ID, events[0].RequestID)
	assert.EqualValues(t, 1, events[0].Version)
}

func TestFullApprovalRoundTrip(t *testing.T) {
	store, _, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")

	res, err := engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentApprove, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPendingAccounting, res.Status)
	assert.EqualValues(t, 2, res.Version)

	res, err = engine.AttemptTransition(ctx, req.ID, accountingActor, repository.IntentApprove, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPendingCashier, res.Status)
	assert.EqualValues(t, 3, res.Version)

	res, err = engine.AttemptTransition(ctx, req.ID, cashierActor, repository.IntentPay, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCompleted, res.Status)
	assert.EqualValues(t, 4, res.Version)

	final, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, final.BudgetApprovedAt)
	require.NotNil(t, final.AccountingApprovedAt)
	require.NotNil(t, final.CashierPaidAt)

	// Stage timestamps are nondecreasing along the pipeline.
	assert.False(t, final.BudgetApprovedAt.Before(final.SubmittedAt))
	assert.False(t, final.AccountingApprovedAt.Before(*final.BudgetApprovedAt))
	assert.False(t, final.CashierPaidAt.Before(*final.AccountingApprovedAt))

	history, err := store.ListHistory(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, repository.StatusPendingBudget, history[0].ToStatus)
	assert.Equal(t, repository.StatusPendingAccounting, history[1].ToStatus)
	assert.Equal(t, repository.StatusPendingCashier, history[2].ToStatus)
	assert.Equal(t, repository.StatusCompleted, history[3].ToStatus)
}

func TestRejectWithRemarks(t *testing.T) {
	store, pub, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")
	_, err := engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentApprove, 1, nil)
	require.NoError(t, err)

	remarks := "insufficient documentation"
	res, err := engine.AttemptTransition(ctx, req.ID, accountingActor, repository.IntentReject, 2, &remarks)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRejected, res.Status)
	assert.EqualValues(t, 3, res.Version)

	final, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, final.RejectedAt)
	require.NotNil(t, final.Remarks)
	assert.Equal(t, remarks, *final.Remarks)

	// The rejection event targets the owner channel only.
	events := pub.Events()
	last := events[len(events)-1]
	targets := notify.Route(last)
	require.Len(t, targets, 1)
	assert.Equal(t, "user:owner-1", targets[0].Channel)
	assert.Equal(t, notify.KindOwnerUpdate, targets[0].Envelope.Kind)
}

func TestRejectWithoutRemarks(t *testing.T) {
	store, pub, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")
	eventsBefore := len(pub.Events())

	empty := "   "
	_, err := engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentReject, 1, &empty)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidRemarks, apperr.CodeOf(err))

	_, err = engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentReject, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidRemarks, apperr.CodeOf(err))

	// Nothing changed and nothing was published.
	final, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPendingBudget, final.Status)
	assert.EqualValues(t, 1, final.Version)
	assert.Len(t, pub.Events(), eventsBefore)
}

func TestWrongRoleForbidden(t *testing.T) {
	store, pub, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")
	eventsBefore := len(pub.Events())

	// Cashier cannot act while Budget holds the queue.
	_, err := engine.AttemptTransition(ctx, req.ID, cashierActor, repository.IntentApprove, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	// The owner cannot approve their own request either.
	owner := Actor{ID: "owner-1", Roles: []string{repository.RoleRequester}}
	_, err = engine.AttemptTransition(ctx, req.ID, owner, repository.IntentApprove, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	history, err := store.ListHistory(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, pub.Events(), eventsBefore)
}

func TestIntentInvalidForStage(t *testing.T) {
	_, _, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")

	// pay is the cashier-stage intent; budget cannot use it.
	_, err := engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentPay, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestTerminalStateIsFinal(t *testing.T) {
	_, _, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")
	remarks := "duplicate submission"
	_, err := engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentReject, 1, &remarks)
	require.NoError(t, err)

	for _, intent := range []repository.Intent{repository.IntentApprove, repository.IntentPay, repository.IntentReject} {
		_, err := engine.AttemptTransition(ctx, req.ID, budgetActor, intent, 2, &remarks)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeAlreadyFinal, apperr.CodeOf(err))
	}
}

func TestConcurrentApproveOneWins(t *testing.T) {
	store, _, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentApprove, 1, nil)
		}(i)
	}
	wg.Wait()

	var successes, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.IsCode(err, apperr.CodeStaleState):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stale)

	final, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPendingAccounting, final.Status)
	assert.EqualValues(t, 2, final.Version)

	history, err := store.ListHistory(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestStaleVersionRejected(t *testing.T) {
	_, _, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")
	_, err := engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentApprove, 1, nil)
	require.NoError(t, err)

	// Replaying the same expected version loses.
	_, err = engine.AttemptTransition(ctx, req.ID, accountingActor, repository.IntentApprove, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStaleState, apperr.CodeOf(err))
}

func TestLedgerEntriesImmutable(t *testing.T) {
	store, _, svc, engine := newTestPipeline(t)
	ctx := context.Background()

	req := submit(t, svc, "owner-1")

	before, err := store.ListHistory(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)
	firstBefore := *before[0]

	_, err = engine.AttemptTransition(ctx, req.ID, budgetActor, repository.IntentApprove, 1, nil)
	require.NoError(t, err)

	after, err := store.ListHistory(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, firstBefore, *after[0])
}
