package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/core"

	"github.com/google/uuid"
)

// maxErrorLength caps the stored relay error text.
const maxErrorLength = 500

func insertEvent(ctx context.Context, q querier, e core.Event) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO ledger_events (owner, kind, category_id, category_name, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Owner, string(e.Kind), e.CategoryID.String(), e.Category, payload, e.OccurredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert %s event: %w", e.Kind, err)
	}
	return nil
}

// PendingEvents returns unpublished events with fewer than maxAttempts failed
// deliveries, oldest first.
func (r *SQLiteRepository) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]core.Event, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner, kind, category_id, category_name, payload, created_at, attempts
		 FROM ledger_events
		 WHERE published_at IS NULL AND attempts < ?
		 ORDER BY id
		 LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, classify("pending events", err)
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		var (
			e          core.Event
			kind, id   string
			payload    sql.NullString
			occurredAt int64
		)
		if err := rows.Scan(&e.ID, &e.Owner, &kind, &id, &e.Category, &payload, &occurredAt, &e.Attempts); err != nil {
			return nil, classify("pending events", err)
		}
		e.Kind = core.EventKind(kind)
		if e.CategoryID, err = uuid.Parse(id); err != nil {
			return nil, classify("pending events", fmt.Errorf("parse event category id %q: %w", id, err))
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		e.OccurredAt = time.Unix(0, occurredAt).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("pending events", err)
	}
	return events, nil
}

// MarkEventPublished marks an event as delivered to the broker.
func (r *SQLiteRepository) MarkEventPublished(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger_events SET published_at = ?, last_error = NULL WHERE id = ?`, r.now().UnixNano(), id)
	if err != nil {
		return classify("mark event published", err)
	}
	return nil
}

// MarkEventFailed records a failed delivery attempt.
func (r *SQLiteRepository) MarkEventFailed(ctx context.Context, id int64, cause error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > maxErrorLength {
			msg = msg[:maxErrorLength]
		}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`, msg, id)
	if err != nil {
		return classify("mark event failed", err)
	}

	slog.WarnContext(ctx, "Ledger event delivery failed", "id", id, "error", msg)
	return nil
}

// PruneEvents deletes published events older than before.
func (r *SQLiteRepository) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_events WHERE published_at IS NOT NULL AND published_at < ?`, before.UnixNano())
	if err != nil {
		return 0, classify("prune events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("prune events", err)
	}
	return n, nil
}
