package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scholarfin/be-fund-requests/internal/apperr"
)

// appendHistoryTx inserts one ledger entry inside an open transaction. The
// table carries a delete-prevention trigger; insert is the only mutation the
// service ever issues.
func appendHistoryTx(ctx context.Context, tx pgx.Tx, entry *StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO request_status_history
		    (id, request_id, actor, from_status, to_status, remarks, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.Actor,
		entry.FromStatus,
		entry.ToStatus,
		entry.Remarks,
		entry.OccurredAt,
	)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append status history entry")
	}
	return nil
}

// ListHistory returns the full ledger for a request oldest-first. The read has
// no side effects and may be repeated freely.
func (s *PostgresStore) ListHistory(ctx context.Context, requestID string) ([]*StatusHistoryEntry, error) {
	query := `
		SELECT id, request_id, actor, from_status, to_status, remarks, occurred_at
		FROM request_status_history
		WHERE request_id = $1
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list status history")
	}
	defer rows.Close()

	var entries []*StatusHistoryEntry
	for rows.Next() {
		entry := &StatusHistoryEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.Actor,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.Remarks,
			&entry.OccurredAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan status history entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
