package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config configures the connection manager. Zero fields take defaults.
type Config struct {
	MaxReconnectAttempts    int           // default 5
	ReconnectDelay          time.Duration // backoff base, default 1s
	FallbackPollingInterval time.Duration // default 5s
	HeartbeatInterval       time.Duration // default 10s
	SettleTimeout           time.Duration // max wait in Connect, default 10s

	// Clock drives every timer the manager owns. Defaults to the real
	// clock; tests inject a fake.
	Clock clockwork.Clock
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.FallbackPollingInterval == 0 {
		c.FallbackPollingInterval = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.SettleTimeout == 0 {
		c.SettleTimeout = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Manager owns a single push subscription, tracks connection state,
// reconnects with exponential backoff, and activates polling fallback
// once reconnection attempts are exhausted.
type Manager interface {
	// Connect opens the subscription for the given recipient identity.
	// It returns once the first Connected or terminal Failed state is
	// reached. Idempotent while Connecting or Connected. Only this
	// first settle surfaces errors; later connectivity failures are
	// observable through OnStatusChange.
	Connect(ctx context.Context, identity string) error

	// Disconnect tears down the subscription, cancels every pending
	// timer, and suppresses further auto-reconnect. Never fails.
	Disconnect()

	// Reconnect is Disconnect followed by Connect.
	Reconnect(ctx context.Context, identity string) error

	// Status returns the current connection status.
	Status() Status

	// OnStatusChange registers an observer invoked after every status
	// transition, in registration order. The returned function
	// deregisters it.
	OnStatusChange(fn func(Status)) func()

	// OnMessage registers a handler for every inbound payload, push or
	// fallback-synthesized. A panicking handler is recovered and does
	// not stop the others.
	OnMessage(fn func(data []byte)) func()

	// SetFallback registers the refresh function invoked when fallback
	// activates and on each poll tick thereafter.
	SetFallback(fn func(ctx context.Context) error)

	// Deliver forwards a fallback-synthesized payload to the message
	// handlers, same as a push payload.
	Deliver(data []byte)
}

type statusListener struct {
	id int
	fn func(Status)
}

type messageListener struct {
	id int
	fn func([]byte)
}

// manager implements Manager.
type manager struct {
	cfg    Config
	opener Opener
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	status   Status
	identity string
	ctx      context.Context // from the Connect that opened this session
	channel  Channel
	stopped  bool // set by Disconnect, cleared by Connect
	gen      uint64

	settle chan error // first Connect's settle, nil once resolved

	reconnectTimer clockwork.Timer
	stopHeartbeat  chan struct{}
	stopFallback   chan struct{}

	fallback func(ctx context.Context) error

	nextListenerID   int
	statusListeners  []statusListener
	messageListeners []messageListener

	// Transitions queue their notifications under mu; flushNotify
	// drains them in order after mu is released. The notifying flag
	// keeps exactly one flusher active, so a listener that calls back
	// into the manager queues behind the in-flight drain instead of
	// deadlocking.
	pendingNotify []Status
	notifying     bool
}

// NewManager creates a connection manager using the given channel
// opener.
func NewManager(cfg Config, opener Opener, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &manager{
		cfg:    cfg,
		opener: opener,
		clock:  cfg.Clock,
		logger: logger,
		status: Status{State: StateDisconnected},
	}
}

// Connect opens the subscription for the given identity.
func (m *manager) Connect(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrMissingIdentity
	}

	m.mu.Lock()
	if m.status.State == StateConnecting || m.status.State == StateConnected {
		m.mu.Unlock()
		return nil
	}

	m.stopped = false
	m.gen++
	gen := m.gen
	m.identity = identity
	m.ctx = ctx
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopFallbackLocked()

	settle := make(chan error, 1)
	m.settle = settle

	// Armed before observers hear about Connecting so a virtual clock
	// always finds it pending.
	settleTimer := m.clock.NewTimer(m.cfg.SettleTimeout)
	defer settleTimer.Stop()

	m.setStatusLocked(Status{State: StateConnecting})
	m.mu.Unlock()
	m.flushNotify()

	if err := m.openAndSubscribe(gen); err != nil {
		// Hard initialization failure: the channel could not even be
		// created. Reset and surface it.
		m.mu.Lock()
		if m.gen == gen && !m.stopped {
			m.settle = nil
			m.setStatusLocked(Status{State: StateDisconnected})
		}
		m.mu.Unlock()
		m.flushNotify()
		return err
	}

	select {
	case err := <-settle:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-settleTimer.Chan():
		return ErrSettleTimeout
	}
}

// Disconnect tears everything down and suppresses auto-reconnect.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	m.gen++

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	m.stopFallbackLocked()

	ch := m.channel
	m.channel = nil

	m.settleLocked(ErrDisconnected)
	m.setStatusLocked(Status{State: StateDisconnected})
	m.mu.Unlock()

	if ch != nil {
		ch.Unsubscribe()
	}
	m.flushNotify()
}

// Reconnect is Disconnect followed by Connect.
func (m *manager) Reconnect(ctx context.Context, identity string) error {
	m.Disconnect()
	return m.Connect(ctx, identity)
}

// Status returns a copy of the current status.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatusChange registers a status observer.
func (m *manager) OnStatusChange(fn func(Status)) func() {
	m.mu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.statusListeners = append(m.statusListeners, statusListener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.statusListeners {
			if l.id == id {
				m.statusListeners = append(m.statusListeners[:i], m.statusListeners[i+1:]...)
				return
			}
		}
	}
}

// OnMessage registers a message handler.
func (m *manager) OnMessage(fn func(data []byte)) func() {
	m.mu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.messageListeners = append(m.messageListeners, messageListener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.messageListeners {
			if l.id == id {
				m.messageListeners = append(m.messageListeners[:i], m.messageListeners[i+1:]...)
				return
			}
		}
	}
}

// SetFallback registers the fallback refresh function.
func (m *manager) SetFallback(fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
}

// Deliver forwards a payload to the message handlers.
func (m *manager) Deliver(data []byte) {
	m.dispatch(data)
}

// openAndSubscribe creates and subscribes a channel for the current
// identity. Called without mu held.
func (m *manager) openAndSubscribe(gen uint64) error {
	m.mu.Lock()
	identity := m.identity
	ctx := m.ctx
	m.mu.Unlock()

	ch, err := m.opener.Open(identity)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	m.mu.Lock()
	if m.gen != gen || m.stopped {
		m.mu.Unlock()
		ch.Unsubscribe()
		return nil
	}
	m.channel = ch
	m.mu.Unlock()

	go m.pumpEvents(gen, ch)

	if err := ch.Subscribe(ctx, func(status ChannelStatus, err error) {
		m.handleChannelStatus(gen, status, err)
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	return nil
}

// pumpEvents forwards channel events to the message handlers until the
// channel closes or is replaced.
func (m *manager) pumpEvents(gen uint64, ch Channel) {
	for ev := range ch.Events() {
		m.mu.Lock()
		stale := m.gen != gen
		m.mu.Unlock()
		if stale {
			return
		}
		m.dispatch(ev.Data)
	}
}

// handleChannelStatus reacts to subscription lifecycle signals.
func (m *manager) handleChannelStatus(gen uint64, status ChannelStatus, err error) {
	m.mu.Lock()
	if m.gen != gen || m.stopped {
		m.mu.Unlock()
		return
	}

	switch status {
	case ChannelSubscribed:
		m.becomeConnectedLocked()
	case ChannelError, ChannelClosed:
		if err == nil {
			err = fmt.Errorf("channel %s", status)
		}
		m.scheduleReconnectLocked(err)
	}
	m.mu.Unlock()
	m.flushNotify()
}

// becomeConnectedLocked applies the Connected transition.
func (m *manager) becomeConnectedLocked() {
	m.stopFallbackLocked()
	m.startHeartbeatLocked()
	m.settleLocked(nil)
	m.setStatusLocked(Status{State: StateConnected})

	m.logger.Info("realtime connected", "recipient", m.identity)
}

// scheduleReconnectLocked tears down the current channel and either
// schedules the next backoff attempt or escalates to Failed.
func (m *manager) scheduleReconnectLocked(cause error) {
	m.stopHeartbeatLocked()

	if ch := m.channel; ch != nil {
		m.channel = nil
		go ch.Unsubscribe()
	}

	if m.status.ReconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.enterFailedLocked(cause)
		return
	}

	attempt := m.status.ReconnectAttempts + 1
	delay := m.cfg.ReconnectDelay * (1 << (attempt - 1))
	gen := m.gen

	// Timer armed before observers hear about the transition, so a
	// virtual clock advanced from a status callback finds it pending.
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.attemptReconnect(gen)
	})

	m.setStatusLocked(Status{
		State:             StateReconnecting,
		ReconnectAttempts: attempt,
		FallbackActive:    m.status.FallbackActive,
	})

	m.logger.Warn("realtime channel lost, scheduling reconnect",
		"attempt", attempt,
		"max", m.cfg.MaxReconnectAttempts,
		"delay", delay,
		"error", cause,
	)
}

// attemptReconnect runs when the backoff timer fires.
func (m *manager) attemptReconnect(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.stopped {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.setStatusLocked(Status{
		State:             StateConnecting,
		ReconnectAttempts: m.status.ReconnectAttempts,
		FallbackActive:    m.status.FallbackActive,
	})
	m.mu.Unlock()
	m.flushNotify()

	if err := m.openAndSubscribe(gen); err != nil {
		m.mu.Lock()
		if m.gen == gen && !m.stopped {
			m.scheduleReconnectLocked(err)
		}
		m.mu.Unlock()
		m.flushNotify()
	}
}

// enterFailedLocked applies the terminal Failed transition and starts
// fallback polling.
func (m *manager) enterFailedLocked(cause error) {
	m.settleLocked(fmt.Errorf("%w: %v", ErrRetriesExhausted, cause))
	m.startFallbackLocked()
	m.setStatusLocked(Status{
		State:             StateFailed,
		ReconnectAttempts: m.status.ReconnectAttempts,
		FallbackActive:    true,
	})

	m.logger.Error("realtime reconnect attempts exhausted, polling fallback active",
		"attempts", m.status.ReconnectAttempts,
		"interval", m.cfg.FallbackPollingInterval,
		"error", cause,
	)
}

// startHeartbeatLocked starts the liveness check loop.
func (m *manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()

	stop := make(chan struct{})
	m.stopHeartbeat = stop
	gen := m.gen

	// Ticker armed here, not in the goroutine, so it exists before
	// observers hear about the Connected transition.
	ticker := m.clock.NewTicker(m.cfg.HeartbeatInterval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				m.mu.Lock()
				if m.gen != gen || m.stopped {
					m.mu.Unlock()
					return
				}
				ch := m.channel
				m.mu.Unlock()

				if ch != nil && !ch.Alive() {
					m.mu.Lock()
					if m.gen == gen && !m.stopped {
						m.scheduleReconnectLocked(ErrStaleChannel)
					}
					m.mu.Unlock()
					m.flushNotify()
					return
				}
			}
		}
	}()
}

func (m *manager) stopHeartbeatLocked() {
	if m.stopHeartbeat != nil {
		close(m.stopHeartbeat)
		m.stopHeartbeat = nil
	}
}

// startFallbackLocked invokes the fallback immediately and then once
// per polling interval.
func (m *manager) startFallbackLocked() {
	m.stopFallbackLocked()

	stop := make(chan struct{})
	m.stopFallback = stop

	ticker := m.clock.NewTicker(m.cfg.FallbackPollingInterval)

	go func() {
		defer ticker.Stop()

		m.runFallback()

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				m.runFallback()
			}
		}
	}()
}

func (m *manager) stopFallbackLocked() {
	if m.stopFallback != nil {
		close(m.stopFallback)
		m.stopFallback = nil
	}
}

// runFallback invokes the fallback function, containing its failures.
func (m *manager) runFallback() {
	m.mu.Lock()
	fn := m.fallback
	ctx := m.ctx
	m.mu.Unlock()

	if fn == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("fallback panicked", "panic", r)
		}
	}()

	if err := fn(ctx); err != nil {
		m.logger.Warn("fallback poll failed", "error", err)
	}
}

// settleLocked resolves the pending Connect, if any. Only the first
// resolution counts.
func (m *manager) settleLocked(err error) {
	if m.settle == nil {
		return
	}
	m.settle <- err
	m.settle = nil
}

// setStatusLocked applies a transition and queues the observer
// notification.
func (m *manager) setStatusLocked(s Status) {
	m.status = s
	m.pendingNotify = append(m.pendingNotify, s)
}

// flushNotify drains queued status notifications in order. Called
// after mu is released. Listeners run with no manager lock held, so
// they may call Connect, Disconnect, or Reconnect; transitions they
// trigger are appended to the queue and delivered by the flusher
// already running.
func (m *manager) flushNotify() {
	m.mu.Lock()
	if m.notifying {
		m.mu.Unlock()
		return
	}
	m.notifying = true

	for len(m.pendingNotify) > 0 {
		s := m.pendingNotify[0]
		m.pendingNotify = m.pendingNotify[1:]
		listeners := make([]statusListener, len(m.statusListeners))
		copy(listeners, m.statusListeners)
		m.mu.Unlock()

		for _, l := range listeners {
			m.safeNotifyStatus(l.fn, s)
		}

		m.mu.Lock()
	}

	m.notifying = false
	m.mu.Unlock()
}

func (m *manager) safeNotifyStatus(fn func(Status), s Status) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("status listener panicked", "panic", r)
		}
	}()
	fn(s)
}

// dispatch forwards a payload to every message handler in registration
// order, recovering panics so one handler cannot starve the rest.
func (m *manager) dispatch(data []byte) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	listeners := make([]messageListener, len(m.messageListeners))
	copy(listeners, m.messageListeners)
	m.mu.Unlock()

	for _, l := range listeners {
		m.safeNotifyMessage(l.fn, data)
	}
}

func (m *manager) safeNotifyMessage(fn func([]byte), data []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("message handler panicked", "panic", r)
		}
	}()
	fn(data)
}
