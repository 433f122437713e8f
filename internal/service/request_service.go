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

// RoleDirectory resolves the roles an actor holds. The directory itself is an
// external collaborator; the real implementation lives in internal/client.
type RoleDirectory interface {
	GetRoles(ctx context.Context, userID string) ([]string, error)
}

// CreateRequestInput carries the fields an owner submits.
type CreateRequestInput struct {
	OwnerID     string  `json:"-"`
	Title       string  `json:"title"`
	RequestType string  `json:"request_type"`
	Amount      int64   `json:"amount"`
	Description *string `json:"description,omitempty"`
}

// RequestService handles request lifecycle operations other than stage
// transitions: submission, reads and the audit query.
type RequestService struct {
	store     repository.Store
	publisher EventPublisher
	log       *logger.Logger
}

// NewRequestService creates a RequestService.
func NewRequestService(store repository.Store, publisher EventPublisher, log *logger.Logger) *RequestService {
	return &RequestService{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// Create submits a new request. It starts in pending_budget at version 1 with
// submitted_at set, and the submission is the first ledger entry. The budget
// queue is notified like any other entry into a pending stage.
func (s *RequestService) Create(ctx context.Context, input CreateRequestInput) (*repository.FinancialRequest, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperr.InvalidInput("title", "title is required")
	}
	if input.Amount <= 0 {
		return nil, apperr.InvalidInput("amount", "amount must be positive")
	}
	if strings.TrimSpace(input.RequestType) == "" {
		return nil, apperr.InvalidInput("request_type", "request type is required")
	}

	now := time.Now().UTC()
	req := &repository.FinancialRequest{
		OwnerID:     input.OwnerID,
		Title:       input.Title,
		RequestType: input.RequestType,
		Amount:      input.Amount,
		Description: input.Description,
		Status:      repository.StatusPendingBudget,
		SubmittedAt: now,
		Version:     1,
		UpdatedAt:   now,
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("owner_id", req.OwnerID).
		Int64("amount", req.Amount).
		Msg("financial request submitted")

	s.publisher.Publish(ctx, notify.NewEvent(req, req.OwnerID, nil), req)

	return req, nil
}

// Get loads one request.
func (s *RequestService) Get(ctx context.Context, id string) (*repository.FinancialRequest, error) {
	return s.store.GetRequest(ctx, id)
}

// List returns requests matching the filter, newest first. Each approver role
// reads its queue as List with status = the stage it holds.
func (s *RequestService) List(ctx context.Context, filter repository.ListFilter) ([]*repository.FinancialRequest, error) {
	return s.store.ListRequests(ctx, filter)
}

// History returns the request's full ledger in append order. The read is
// side-effect free and restartable.
func (s *RequestService) History(ctx context.Context, requestID string) ([]*repository.StatusHistoryEntry, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, requestID)
}
