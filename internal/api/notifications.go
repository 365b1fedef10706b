package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/classline/notify/internal/model"
	"github.com/google/uuid"
)

// ListNotificationsOptions filter a notifications page request.
type ListNotificationsOptions struct {
	Recipient string    // required: recipient identity to fetch for
	Since     time.Time // only notifications created after this instant
	Cursor    string    // pagination cursor from a previous response
	Limit     int       // page size, server default if 0
	Unread    bool      // only notifications without a read timestamp
}

// ListNotifications fetches a page of notifications for a recipient.
func (c *Client) ListNotifications(ctx context.Context, opts ListNotificationsOptions) (*NotificationsResponse, error) {
	if opts.Recipient == "" {
		return nil, fmt.Errorf("list notifications: recipient is required")
	}

	query := url.Values{}
	query.Set("recipient", opts.Recipient)
	if !opts.Since.IsZero() {
		query.Set("since", opts.Since.UTC().Format(time.RFC3339Nano))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Unread {
		query.Set("unread", "true")
	}

	var resp NotificationsResponse
	if err := c.get(ctx, "/notifications", query, &resp); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return &resp, nil
}

// ListAllNotifications fetches all notifications matching the options by
// paginating through results.
func (c *Client) ListAllNotifications(ctx context.Context, opts ListNotificationsOptions) ([]model.Notification, error) {
	var all []model.Notification
	opts.Limit = maxPageSize

	for {
		resp, err := c.ListNotifications(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Notifications...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}

// MarkDelivered acknowledges delivery of the given notifications.
func (c *Client) MarkDelivered(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	req := markDeliveredRequest{IDs: ids}
	if err := c.post(ctx, "/notifications/delivered", req, nil); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkRead marks a single notification as read by the recipient.
func (c *Client) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := c.post(ctx, "/notifications/"+id.String()+"/read", nil, nil); err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	return nil
}
