package database

import (
	"context"
	"database/sql"
	"fmt"
)

var _ FeedRepository = (*FeedRepo)(nil)

// FeedRepo handles database operations for feeds
type FeedRepo struct {
	db *DB
}

func NewFeedRepo(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

const feedColumns = `id, url, etag, last_modified, created_at, updated_at`

func (r *FeedRepo) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed %d: %w", id, err)
	}
	return feed, nil
}

func (r *FeedRepo) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by url: %w", err)
	}
	return feed, nil
}

func (r *FeedRepo) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// GetActiveFeeds returns the feeds referenced by at least one message that
// is neither a draft nor finished.
func (r *FeedRepo) GetActiveFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fe.id, fe.url, fe.etag, fe.last_modified, fe.created_at, fe.updated_at
		FROM feeds fe
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.rss_feed = fe.url AND m.status NOT IN `+inactiveStatuses+`
		)
		ORDER BY fe.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active feeds: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) ListFeeds(ctx context.Context) ([]FeedSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fe.id, fe.url, fe.etag, fe.last_modified, fe.created_at, fe.updated_at,
		       COUNT(it.id), COALESCE(MAX(it.published), '')
		FROM feeds fe
		LEFT JOIN items it ON it.feed_id = fe.id
		GROUP BY fe.id
		ORDER BY fe.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var summaries []FeedSummary
	for rows.Next() {
		var (
			s                    FeedSummary
			createdAt, updatedAt string
			latest               string
		)
		if err := rows.Scan(&s.ID, &s.URL, &s.ETag, &s.LastModified, &createdAt, &updatedAt, &s.ItemCount, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan feed summary: %w", err)
		}
		if s.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = ParseTime(updatedAt); err != nil {
			return nil, err
		}
		if latest != "" {
			t, err := ParseTime(latest)
			if err != nil {
				return nil, err
			}
			s.LatestPublished = &t
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feeds: %w", err)
	}

	return summaries, nil
}

// AddFeed inserts the feed if its URL is not known yet and returns the stored row.
func (r *FeedRepo) AddFeed(ctx context.Context, url string) (*Feed, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO feeds (url) VALUES (?) ON CONFLICT (url) DO NOTHING`, url)
	if err != nil {
		return nil, fmt.Errorf("failed to add feed: %w", err)
	}

	feed, err := r.GetFeedByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, ErrFeedNotFound
	}
	return feed, nil
}

func (r *FeedRepo) UpdateCacheHeaders(ctx context.Context, id int64, etag, lastModified string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET etag = ?, last_modified = ?, updated_at = datetime('now')
		WHERE id = ?
	`, etag, lastModified, id)
	if err != nil {
		return fmt.Errorf("failed to update cache headers: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrFeedNotFound
	}
	return nil
}

// DeleteUnusedFeeds removes feeds no message refers to, together with their items.
func (r *FeedRepo) DeleteUnusedFeeds(ctx context.Context) (int64, error) {
	const unused = `SELECT id FROM feeds WHERE url NOT IN (SELECT rss_feed FROM messages)`

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM item_properties
		WHERE item_id IN (SELECT id FROM items WHERE feed_id IN (`+unused+`))
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused feed item properties: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM items WHERE feed_id IN (`+unused+`)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused feed items: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id IN (`+unused+`)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused feeds: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return count, nil
}

// ResetFeeds deletes every item and clears the cache validators so that the
// next fetch downloads and ingests each feed from scratch.
func (r *FeedRepo) ResetFeeds(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM item_properties`); err != nil {
		return fmt.Errorf("failed to delete item properties: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE feeds SET etag = '', last_modified = ''`); err != nil {
		return fmt.Errorf("failed to reset cache headers: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var (
		feed                 Feed
		createdAt, updatedAt string
	)

	if err := row.Scan(&feed.ID, &feed.URL, &feed.ETag, &feed.LastModified, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if feed.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if feed.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &feed, nil
}
