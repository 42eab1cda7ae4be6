package database

import "time"

type MessageStatus string

const (
	StatusDraft     MessageStatus = "draft"
	StatusSubmitted MessageStatus = "submitted"
	StatusInProcess MessageStatus = "inprocess"
	StatusPrepared  MessageStatus = "prepared"
	StatusSuspended MessageStatus = "suspended"
	StatusSent      MessageStatus = "sent"
)

// inactiveStatuses are excluded from fetching and queue evaluation.
const inactiveStatuses = `('draft', 'sent', 'prepared', 'suspended')`

type ItemOrder int

const (
	OrderOldestFirst ItemOrder = 1
	OrderLatestFirst ItemOrder = 2
)

// SelectField is the item timestamp a selection window applies to.
type SelectField string

const (
	SelectPublished SelectField = "published"
	SelectAdded     SelectField = "added"
)

func (f SelectField) column() string {
	if f == SelectAdded {
		return "added"
	}
	return "published"
}

// ItemQuery selects the newest Limit items of a feed, optionally bounded to
// [Start, End) on Field.
type ItemQuery struct {
	FeedURL string
	Field   SelectField
	Start   *time.Time
	End     *time.Time
	Limit   int
}
