package store

import "time"

// inboxRow represents a row to be inserted into the notifications table.
type inboxRow struct {
	ID          string // UUID
	RecipientID string
	Kind        string
	Title       string
	Body        string
	Payload     []byte // JSONB, nil when the envelope carried none
	CreatedAt   time.Time
	ReceivedAt  time.Time
	ReadAt      *time.Time
}

// WriterMetrics holds metrics for the inbox writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
