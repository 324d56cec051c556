package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/powerchain/backend/internal/models"
)

// EventJournal is the durable append-only log of committed ledger events.
type EventJournal struct {
	db *sql.DB
}

func NewEventJournal(db *sql.DB) *EventJournal {
	return &EventJournal{db: db}
}

// Append writes all events of one ledger transaction atomically.
func (j *EventJournal) Append(ctx context.Context, events []models.Event) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		env := models.Wrap(ev)
		payload, err := json.Marshal(env.Payload)
		if err != nil {
			return fmt.Errorf("journal append: marshal %s: %w", env.Kind, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_events (event_id, kind, payload, occurred_at)
			VALUES ($1, $2, $3, $4)`,
			env.ID, string(env.Kind), payload, env.OccurredAt); err != nil {
			return fmt.Errorf("journal append: insert %s: %w", env.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal append: commit: %w", err)
	}
	return nil
}

// JournalRecord is one stored event in raw form.
type JournalRecord struct {
	ID         int64            `json:"id"`
	EventID    string           `json:"event_id"`
	Kind       models.EventKind `json:"kind"`
	Payload    json.RawMessage  `json:"payload"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Recent returns up to limit events, newest first, optionally of one kind.
func (j *EventJournal) Recent(ctx context.Context, kind models.EventKind, limit int) ([]JournalRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, event_id, kind, payload, occurred_at FROM ledger_events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1 ORDER BY id DESC LIMIT $2`
		args = append(args, string(kind), limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()

	records := []JournalRecord{}
	for rows.Next() {
		var (
			rec     JournalRecord
			kindStr string
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &kindStr, &payload, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("journal recent: scan: %w", err)
		}
		rec.Kind = models.EventKind(kindStr)
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal recent: rows: %w", err)
	}
	return records, nil
}

// Load returns every journaled event in commit order, decoded for replay.
func (j *EventJournal) Load(ctx context.Context) ([]models.Event, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, kind, payload FROM ledger_events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			id      int64
			kind    string
			payload []byte
		)
		if err := rows.Scan(&id, &kind, &payload); err != nil {
			return nil, fmt.Errorf("journal load: scan: %w", err)
		}
		ev, err := models.DecodeEvent(models.EventKind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("journal load: row %d: %w", id, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal load: rows: %w", err)
	}
	return events, nil
}
