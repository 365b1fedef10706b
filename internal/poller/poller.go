package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classline/notify/internal/api"
)

// Config holds refresher configuration.
type Config struct {
	PageSize int           // notifications per page (default: 100)
	Timeout  time.Duration // per-refresh timeout (default: 10s)
	Ack      bool          // acknowledge delivery after a refresh
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PageSize: 100,
		Timeout:  10 * time.Second,
	}
}

// DeliverFunc receives one raw notification envelope.
type DeliverFunc func(data []byte)

// Refresher fetches missed notifications over REST while the push
// channel is down. Refresh is the fallback callback the connection
// manager invokes: it pages forward from the last seen creation time
// and hands every notification to the delivery path.
type Refresher struct {
	cfg       Config
	client    *api.Client
	recipient string
	deliver   DeliverFunc
	logger    *slog.Logger

	mu      sync.Mutex
	since   time.Time
	running bool
}

// New creates a Refresher for one recipient.
func New(cfg Config, client *api.Client, recipient string, deliver DeliverFunc, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Refresher{
		cfg:       cfg,
		client:    client,
		recipient: recipient,
		deliver:   deliver,
		logger:    logger,
	}
}

// SetSince seeds the high-water mark, typically from the newest stored
// notification, so a refresh does not re-fetch history.
func (r *Refresher) SetSince(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.since) {
		r.since = t
	}
}

// Refresh performs one refresh cycle. Safe to call repeatedly;
// invocations that overlap a running cycle return immediately.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("refresh already in flight, skipping")
		return nil
	}
	r.running = true
	since := r.since
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	newest := since
	var delivered int
	var ids []uuid.UUID

	opts := api.ListNotificationsOptions{
		Recipient: r.recipient,
		Since:     since,
		Limit:     r.cfg.PageSize,
	}

	for {
		resp, err := r.client.ListNotifications(ctx, opts)
		if err != nil {
			return err
		}

		for _, n := range resp.Notifications {
			data, err := json.Marshal(n)
			if err != nil {
				r.logger.Warn("failed to re-encode notification",
					"id", n.ID,
					"error", err,
				)
				continue
			}

			r.deliver(data)
			delivered++
			ids = append(ids, n.ID)
			if n.CreatedAt.After(newest) {
				newest = n.CreatedAt
			}
		}

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	if r.cfg.Ack && len(ids) > 0 {
		if err := r.client.MarkDelivered(ctx, ids); err != nil {
			r.logger.Warn("failed to acknowledge delivery",
				"count", len(ids),
				"error", err,
			)
		}
	}

	r.mu.Lock()
	if newest.After(r.since) {
		r.since = newest
	}
	r.mu.Unlock()

	r.logger.Info("refresh cycle complete",
		"recipient", r.recipient,
		"delivered", delivered,
		"duration", time.Since(start),
	)

	return nil
}
