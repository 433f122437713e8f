package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
)

func newStoredRequest(t *testing.T, store *MemoryStore) *FinancialRequest {
	t.Helper()
	req := &FinancialRequest{
		OwnerID:     "owner-1",
		Title:       "Thesis printing grant",
		RequestType: "disbursement",
		Amount:      4500,
		Status:      StatusPendingBudget,
		SubmittedAt: time.Now().UTC(),
		Version:     1,
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func TestMemoryStoreCreateAppendsSubmissionEntry(t *testing.T) {
	store := NewMemoryStore()
	req := newStoredRequest(t, store)

	history, err := store.ListHistory(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, StatusPendingBudget, history[0].ToStatus)
	assert.Equal(t, "owner-1", history[0].Actor)
}

func TestMemoryStoreApplyTransition(t *testing.T) {
	store := NewMemoryStore()
	req := newStoredRequest(t, store)

	updated, err := store.ApplyTransition(context.Background(), &TransitionRecord{
		RequestID:       req.ID,
		Actor:           "budget-1",
		ExpectedVersion: 1,
		FromStatus:      StatusPendingBudget,
		ToStatus:        StatusPendingAccounting,
		StampAt:         time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingAccounting, updated.Status)
	assert.EqualValues(t, 2, updated.Version)
	require.NotNil(t, updated.BudgetApprovedAt)
}

func TestMemoryStoreStaleVersion(t *testing.T) {
	store := NewMemoryStore()
	req := newStoredRequest(t, store)

	rec := &TransitionRecord{
		RequestID:       req.ID,
		Actor:           "budget-1",
		ExpectedVersion: 1,
		FromStatus:      StatusPendingBudget,
		ToStatus:        StatusPendingAccounting,
		StampAt:         time.Now().UTC(),
	}
	_, err := store.ApplyTransition(context.Background(), rec)
	require.NoError(t, err)

	// Same expected version again: no mutation, stale error.
	_, err = store.ApplyTransition(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStaleState, apperr.CodeOf(err))

	current, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, current.Version)

	history, err := store.ListHistory(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMemoryStoreUnknownRequest(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetRequest(context.Background(), "missing")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = store.ApplyTransition(context.Background(), &TransitionRecord{RequestID: "missing", ExpectedVersion: 1, ToStatus: StatusPendingAccounting})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newStoredRequest(t, store)
	second := &FinancialRequest{
		OwnerID:     "owner-2",
		Title:       "Field trip advance",
		RequestType: "advance",
		Amount:      90000,
		Status:      StatusPendingBudget,
		SubmittedAt: time.Now().UTC().Add(time.Second),
		Version:     1,
	}
	require.NoError(t, store.CreateRequest(ctx, second))

	owner := "owner-1"
	got, err := store.ListRequests(ctx, ListFilter{OwnerID: &owner})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	status := StatusPendingBudget
	got, err = store.ListRequests(ctx, ListFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, second.ID, got[0].ID)

	status = StatusCompleted
	got, err = store.ListRequests(ctx, ListFilter{Status: &status})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreListPageSizeDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		req := &FinancialRequest{
			OwnerID:     "owner-1",
			Title:       "Monthly stipend",
			RequestType: "disbursement",
			Amount:      1000,
			Status:      StatusPendingBudget,
			SubmittedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
			Version:     1,
		}
		require.NoError(t, store.CreateRequest(ctx, req))
	}

	// No limit falls back to the default page size.
	got, err := store.ListRequests(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 50)

	// Oversized limits fall back as well.
	got, err = store.ListRequests(ctx, ListFilter{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, got, 50)

	got, err = store.ListRequests(ctx, ListFilter{Limit: 10, Offset: 55})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	req := newStoredRequest(t, store)

	got, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	got.Status = StatusCompleted

	again, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingBudget, again.Status)
}
