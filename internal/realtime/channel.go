package realtime

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrMissingIdentity  = errors.New("identity is required")
	ErrSettleTimeout    = errors.New("timed out waiting for subscription to settle")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrDisconnected     = errors.New("disconnected")
	ErrStaleChannel     = errors.New("channel stale (heartbeat)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrSubscribeTimeout = errors.New("subscribe acknowledgment timeout")
)

// ChannelStatus is a subscription lifecycle signal reported by a Channel.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "SUBSCRIBED"
	ChannelError      ChannelStatus = "CHANNEL_ERROR"
	ChannelClosed     ChannelStatus = "CLOSED"
)

// Event is a single inbound push payload. Data is the raw notification
// envelope; the manager forwards it verbatim without interpreting it.
type Event struct {
	Data       []byte
	ReceivedAt time.Time
}

// StatusFunc receives subscription lifecycle signals. err is non-nil
// only for ChannelError.
type StatusFunc func(status ChannelStatus, err error)

// Channel is a single push subscription. A Channel is single-use:
// Subscribe at most once, then Unsubscribe tears it down for good.
type Channel interface {
	// Subscribe establishes the subscription and reports lifecycle
	// signals through fn. A non-nil return means the subscription
	// could not even be initiated (e.g. dial failure); after a nil
	// return all outcomes arrive via fn.
	Subscribe(ctx context.Context, fn StatusFunc) error

	// Unsubscribe tears down the subscription. Idempotent.
	Unsubscribe()

	// Events returns the inbound payload stream. Closed after
	// Unsubscribe or a terminal channel error.
	Events() <-chan Event

	// Alive reports whether the underlying transport is healthy.
	Alive() bool
}

// Opener creates channels scoped to a recipient identity.
type Opener interface {
	Open(identity string) (Channel, error)
}
