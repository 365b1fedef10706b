package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Inbox provides read and maintenance queries over the notifications table.
// Bulk inserts go through the Writer, not Inbox.
type Inbox struct {
	db *pgxpool.Pool
}

// NewInbox creates an Inbox backed by the given pool.
func NewInbox(db *pgxpool.Pool) *Inbox {
	return &Inbox{db: db}
}

// Cursor returns the created_at of the newest stored notification for a
// recipient. Returns a zero time when the inbox is empty, so a fresh
// instance polls from the beginning.
func (s *Inbox) Cursor(ctx context.Context, recipient string) (time.Time, error) {
	var cursor time.Time
	err := s.db.QueryRow(ctx, `
		SELECT created_at FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, recipient).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query cursor: %w", err)
	}
	return cursor, nil
}

// MarkRead stamps a notification as read. Already-read rows keep their
// original read_at.
func (s *Inbox) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET read_at = $2
		WHERE id = $1 AND read_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UnreadCount returns how many unread notifications a recipient has.
func (s *Inbox) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND read_at IS NULL
	`, recipient).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
