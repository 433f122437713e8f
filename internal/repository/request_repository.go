package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
	"github.com/scholarfin/be-fund-requests/internal/database"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `
	id, owner_id, title, request_type, amount, description,
	status, remarks,
	submitted_at, budget_approved_at, accounting_approved_at,
	cashier_paid_at, rejected_at,
	version, created_at, updated_at
`

// CreateRequest inserts the request and its submission ledger entry in one
// transaction.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *FinancialRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO financial_requests
			    (id, owner_id, title, request_type, amount, description,
			     status, submitted_at, version)
			VALUES ($1, $2, $3, $4, $5, $6,
			        $7, $8, 1)
			RETURNING submitted_at, version, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			req.ID,
			req.OwnerID,
			req.Title,
			req.RequestType,
			req.Amount,
			req.Description,
			req.Status,
			req.SubmittedAt,
		).Scan(&req.SubmittedAt, &req.Version, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to create financial request")
		}

		return appendHistoryTx(ctx, tx, &StatusHistoryEntry{
			RequestID:  req.ID,
			Actor:      req.OwnerID,
			FromStatus: nil,
			ToStatus:   req.Status,
			OccurredAt: req.SubmittedAt,
		})
	})
}

// GetRequest loads one request by id.
func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*FinancialRequest, error) {
	query := `SELECT` + requestColumns + `FROM financial_requests WHERE id = $1`

	req, err := scanRequest(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("financial_request", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get financial request")
	}
	return req, nil
}

// ListRequests returns requests matching the filter, newest first.
func (s *PostgresStore) ListRequests(ctx context.Context, filter ListFilter) ([]*FinancialRequest, error) {
	query := `SELECT` + requestColumns + `FROM financial_requests WHERE 1=1`
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY submitted_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list financial requests")
	}
	defer rows.Close()

	var requests []*FinancialRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan financial request")
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// stampColumn maps a target status to the stage timestamp it sets.
func stampColumn(to Status) (string, error) {
	switch to {
	case StatusPendingAccounting:
		return "budget_approved_at", nil
	case StatusPendingCashier:
		return "accounting_approved_at", nil
	case StatusCompleted:
		return "cashier_paid_at", nil
	case StatusRejected:
		return "rejected_at", nil
	}
	return "", apperr.New(apperr.CodeInternal, fmt.Sprintf("no stage timestamp for status %q", to))
}

// ApplyTransition performs the guarded update and the ledger append in one
// transaction. The WHERE version = expected clause is the sole concurrency
// control; when it matches zero rows and the request exists, the caller raced
// another transition and gets CodeStaleState.
func (s *PostgresStore) ApplyTransition(ctx context.Context, rec *TransitionRecord) (*FinancialRequest, error) {
	column, err := stampColumn(rec.ToStatus)
	if err != nil {
		return nil, err
	}

	var updated *FinancialRequest
	err = s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			UPDATE financial_requests
			SET status     = $3,
			    %s         = $4,
			    remarks    = COALESCE($5, remarks),
			    version    = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING`+requestColumns, column)

		req, scanErr := scanRequest(tx.QueryRow(ctx, query,
			rec.RequestID,
			rec.ExpectedVersion,
			rec.ToStatus,
			rec.StampAt,
			rec.Remarks,
		))
		if errors.Is(scanErr, pgx.ErrNoRows) {
			// Distinguish a missing request from a lost race.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM financial_requests WHERE id = $1)`,
				rec.RequestID,
			).Scan(&exists); err != nil {
				return apperr.Wrap(err, apperr.CodeInternal, "failed to check request existence")
			}
			if !exists {
				return apperr.NotFound("financial_request", rec.RequestID)
			}
			return apperr.New(apperr.CodeStaleState, "request was modified by another transition; reload and retry")
		}
		if scanErr != nil {
			return apperr.Wrap(scanErr, apperr.CodeInternal, "failed to apply transition")
		}
		updated = req

		from := rec.FromStatus
		return appendHistoryTx(ctx, tx, &StatusHistoryEntry{
			RequestID:  rec.RequestID,
			Actor:      rec.Actor,
			FromStatus: &from,
			ToStatus:   rec.ToStatus,
			Remarks:    rec.Remarks,
			OccurredAt: rec.StampAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc requestScanner) (*FinancialRequest, error) {
	req := &FinancialRequest{}
	err := sc.Scan(
		&req.ID,
		&req.OwnerID,
		&req.Title,
		&req.RequestType,
		&req.Amount,
		&req.Description,
		&req.Status,
		&req.Remarks,
		&req.SubmittedAt,
		&req.BudgetApprovedAt,
		&req.AccountingApprovedAt,
		&req.CashierPaidAt,
		&req.RejectedAt,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
