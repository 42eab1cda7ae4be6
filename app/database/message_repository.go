package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ MessageRepository = (*MessageRepo)(nil)

// MessageRepo reads and mutates the campaign state the RSS engine depends on.
type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, subject, body, template, status, embargo, repeat_interval, repeat_until,
	rss_feed, rss_order, rss_template, rss_select_field`

func (r *MessageRepo) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)

	message, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return message, nil
}

func (r *MessageRepo) CreateMessage(ctx context.Context, m *Message) (int64, error) {
	status := m.Status
	if status == "" {
		status = StatusDraft
	}
	order := m.RSSOrder
	if order == 0 {
		order = OrderOldestFirst
	}
	field := m.RSSSelectField
	if field == "" {
		field = SelectPublished
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (subject, body, template, status, embargo, repeat_interval, repeat_until,
			rss_feed, rss_order, rss_template, rss_select_field)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Subject, m.Body, m.Template, string(status), FormatTime(m.Embargo), m.RepeatInterval,
		FormatTime(m.RepeatUntil), m.RSSFeed, int(order), m.RSSTemplate, string(field))
	if err != nil {
		return 0, fmt.Errorf("failed to create message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}
	return id, nil
}

// ReadyMessages returns RSS messages that are due for evaluation at now.
func (r *MessageRepo) ReadyMessages(ctx context.Context, now time.Time) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE rss_feed != '' AND status NOT IN `+inactiveStatuses+` AND embargo <= ?
		ORDER BY id
	`, FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query ready messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ready messages: %w", err)
	}

	return messages, nil
}

// AdvanceEmbargo moves the embargo forward by whole repeat intervals until it
// is later than now. The update only applies while now is before
// repeat_until; the returned count is zero otherwise.
func (r *MessageRepo) AdvanceEmbargo(ctx context.Context, id int64, now time.Time) (int64, error) {
	ts := FormatTime(now)

	result, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET embargo = datetime(embargo, '+' || (
			((CAST(strftime('%s', ?) AS INTEGER) - CAST(strftime('%s', embargo) AS INTEGER)) / 60 / repeat_interval + 1)
			* repeat_interval) || ' minutes')
		WHERE id = ? AND repeat_interval > 0 AND ? < repeat_until
	`, ts, id, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to advance embargo: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) MarkSent(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE messages SET status = ? WHERE id = ? AND status != ?`,
		string(StatusSent), id, string(StatusSent))
	if err != nil {
		return 0, fmt.Errorf("failed to mark message sent: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return count, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m                    Message
		status, field        string
		order                int
		embargo, repeatUntil string
	)

	err := row.Scan(&m.ID, &m.Subject, &m.Body, &m.Template, &status, &embargo, &m.RepeatInterval, &repeatUntil,
		&m.RSSFeed, &order, &m.RSSTemplate, &field)
	if err != nil {
		return nil, err
	}

	m.Status = MessageStatus(status)
	m.RSSOrder = ItemOrder(order)
	m.RSSSelectField = SelectField(field)

	if m.Embargo, err = ParseTime(embargo); err != nil {
		return nil, err
	}
	if m.RepeatUntil, err = ParseTime(repeatUntil); err != nil {
		return nil, err
	}

	return &m, nil
}
