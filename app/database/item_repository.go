package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

var _ ItemRepository = (*ItemRepo)(nil)

// ItemRepo handles database operations for feed items and their properties
type ItemRepo struct {
	db *DB
}

func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// AddItem inserts the item unless (feedID, uid) already exists. The returned
// bool reports whether a new row was created.
func (r *ItemRepo) AddItem(ctx context.Context, feedID int64, uid string, published, added time.Time) (int64, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO items (uid, feed_id, published, added)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (feed_id, uid) DO NOTHING
	`, uid, feedID, FormatTime(published), FormatTime(added))
	if err != nil {
		return 0, false, fmt.Errorf("failed to add item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get item id: %w", err)
	}

	return id, true, nil
}

// AddItemProperties writes the whole property bag in a single statement.
func (r *ItemRepo) AddItemProperties(ctx context.Context, itemID int64, properties map[string]string) error {
	if len(properties) == 0 {
		return nil
	}

	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	placeholders := make([]string, 0, len(names))
	args := make([]any, 0, len(names)*3)
	for _, name := range names {
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args, itemID, name, properties[name])
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO item_properties (item_id, property, value) VALUES `+strings.Join(placeholders, ", "),
		args...)
	if err != nil {
		return fmt.Errorf("failed to add item properties: %w", err)
	}

	return nil
}

// SelectItems returns the newest query.Limit items of the feed, in ascending
// order of the selected field. Items that have no property rows are skipped.
func (r *ItemRepo) SelectItems(ctx context.Context, query ItemQuery) ([]ItemRecord, error) {
	if query.Limit <= 0 {
		return nil, nil
	}

	column := "it." + query.Field.column()

	conditions := []string{"fe.url = ?", "EXISTS (SELECT 1 FROM item_properties ip WHERE ip.item_id = it.id)"}
	args := []any{query.FeedURL}

	if query.Start != nil {
		conditions = append(conditions, column+" >= ?")
		args = append(args, FormatTime(*query.Start))
	}
	if query.End != nil {
		conditions = append(conditions, column+" < ?")
		args = append(args, FormatTime(*query.End))
	}
	args = append(args, query.Limit)

	items, err := r.queryItems(ctx, `
		SELECT it.id, it.uid, it.feed_id, it.published, it.added
		FROM items it
		JOIN feeds fe ON fe.id = it.feed_id
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY `+column+` DESC, it.id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}

	slices.Reverse(items)

	return r.withProperties(ctx, items)
}

// ListItems pages through a feed's items, newest first.
func (r *ItemRepo) ListItems(ctx context.Context, feedID int64, limit, offset int) ([]ItemRecord, error) {
	items, err := r.queryItems(ctx, `
		SELECT id, uid, feed_id, published, added
		FROM items
		WHERE feed_id = ?
		ORDER BY published DESC, id DESC
		LIMIT ? OFFSET ?
	`, feedID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	return r.withProperties(ctx, items)
}

func (r *ItemRepo) GetItemCount(ctx context.Context, feedID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE feed_id = ?`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// DeleteItems removes items published more than days before now, with their
// properties, and returns the number of items removed.
func (r *ItemRepo) DeleteItems(ctx context.Context, days int, now time.Time) (int64, error) {
	cutoff := FormatTime(now.Add(-time.Duration(days) * 24 * time.Hour))

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM item_properties
		WHERE item_id IN (SELECT id FROM items WHERE published < ?)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete item properties: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE published < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return count, nil
}

func (r *ItemRepo) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item             Item
			published, added string
		)
		if err := rows.Scan(&item.ID, &item.UID, &item.FeedID, &published, &added); err != nil {
			return nil, err
		}
		if item.Published, err = ParseTime(published); err != nil {
			return nil, err
		}
		if item.Added, err = ParseTime(added); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// withProperties loads the property rows of items after the item rows have
// been released, since the pool holds a single connection.
func (r *ItemRepo) withProperties(ctx context.Context, items []Item) ([]ItemRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(items))
	args := make([]any, len(items))
	records := make([]ItemRecord, len(items))
	index := make(map[int64]int, len(items))
	for i, item := range items {
		placeholders[i] = "?"
		args[i] = item.ID
		records[i] = ItemRecord{Item: item, Properties: make(map[string]string)}
		index[item.ID] = i
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id, property, value FROM item_properties WHERE item_id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query item properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID          int64
			property, value string
		)
		if err := rows.Scan(&itemID, &property, &value); err != nil {
			return nil, fmt.Errorf("failed to scan item property: %w", err)
		}
		if i, ok := index[itemID]; ok {
			records[i].Properties[property] = value
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item properties: %w", err)
	}

	return records, nil
}
