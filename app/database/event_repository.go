package database

import (
	"context"
	"fmt"
)

var _ EventRepository = (*EventRepo)(nil)

// EventRepo is the audit log.
type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) AddEvent(ctx context.Context, entry string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO event_log (entry) VALUES (?)`, entry)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	return nil
}

func (r *EventRepo) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, entry, created_at FROM event_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event     Event
			createdAt string
		)
		if err := rows.Scan(&event.ID, &event.Entry, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if event.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}
