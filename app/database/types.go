package database

import (
	"errors"
	"fmt"
	"time"
)

// TimeLayout is the persisted timestamp representation. All timestamps are
// stored in UTC so lexical order equals chronological order.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrMessageNotFound = errors.New("message not found")
)

type Feed struct {
	ID           int64
	URL          string
	ETag         string
	LastModified string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type FeedSummary struct {
	Feed
	ItemCount       int
	LatestPublished *time.Time
}

type Item struct {
	ID        int64
	UID       string
	FeedID    int64
	Published time.Time
	Added     time.Time
}

// ItemRecord is an item merged with its property rows.
type ItemRecord struct {
	Item
	Properties map[string]string
}

type Message struct {
	ID             int64
	Subject        string
	Body           string
	Template       string
	Status         MessageStatus
	Embargo        time.Time
	RepeatInterval int // minutes
	RepeatUntil    time.Time
	RSSFeed        string
	RSSOrder       ItemOrder
	RSSTemplate    string
	RSSSelectField SelectField
}

func (m *Message) IsRSS() bool {
	return m != nil && m.RSSFeed != ""
}

type Event struct {
	ID        int64
	Entry     string
	CreatedAt time.Time
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t, nil
}
