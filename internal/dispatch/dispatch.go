package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/classline/notify/internal/model"
)

// Dispatcher parses raw notification envelopes and routes them to
// typed buffers by kind.
type Dispatcher interface {
	// Handle routes a single raw envelope. Registered as the
	// connection manager's message handler.
	Handle(data []byte)

	// Buffers returns the output buffers for consumers.
	Buffers() Buffers

	// Stats returns current routing statistics.
	Stats() Stats

	// Close closes all output buffers.
	Close()
}

// dispatcher is the internal implementation.
type dispatcher struct {
	cfg    Config
	logger *slog.Logger

	inbox         *GrowableBuffer[model.Notification]
	sessions      *GrowableBuffer[SessionMsg]
	assignments   *GrowableBuffer[AssignmentMsg]
	attendance    *GrowableBuffer[AttendanceMsg]
	interviews    *GrowableBuffer[InterviewMsg]
	announcements *GrowableBuffer[AnnouncementMsg]

	mu           sync.Mutex
	received     int64
	routed       int64
	parseErrors  int64
	unknownKinds int64
}

// New creates a notification dispatcher.
func New(cfg Config, logger *slog.Logger) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxBufferSize <= 0 {
		cfg.InboxBufferSize = DefaultConfig().InboxBufferSize
	}
	if cfg.KindBufferSize <= 0 {
		cfg.KindBufferSize = DefaultConfig().KindBufferSize
	}

	return &dispatcher{
		cfg:           cfg,
		logger:        logger,
		inbox:         NewGrowableBuffer[model.Notification](cfg.InboxBufferSize),
		sessions:      NewGrowableBuffer[SessionMsg](cfg.KindBufferSize),
		assignments:   NewGrowableBuffer[AssignmentMsg](cfg.KindBufferSize),
		attendance:    NewGrowableBuffer[AttendanceMsg](cfg.KindBufferSize),
		interviews:    NewGrowableBuffer[InterviewMsg](cfg.KindBufferSize),
		announcements: NewGrowableBuffer[AnnouncementMsg](cfg.KindBufferSize),
	}
}

// Handle parses and routes a single envelope.
func (d *dispatcher) Handle(data []byte) {
	d.mu.Lock()
	d.received++
	d.mu.Unlock()

	n, err := model.Parse(data)
	if err != nil {
		d.logger.Warn("failed to parse notification", "error", err)
		d.mu.Lock()
		d.parseErrors++
		d.mu.Unlock()
		return
	}

	if !n.Kind.Valid() {
		d.logger.Debug("skipping unknown notification kind",
			"id", n.ID,
			"kind", n.Kind,
		)
		d.mu.Lock()
		d.unknownKinds++
		d.mu.Unlock()
		return
	}

	d.inbox.Send(n)

	switch n.Kind {
	case model.KindSession:
		var p model.SessionPayload
		if !d.decodePayload(n, &p) {
			return
		}
		d.sessions.Send(SessionMsg{Notification: n, Payload: p})

	case model.KindAssignment:
		var p model.AssignmentPayload
		if !d.decodePayload(n, &p) {
			return
		}
		d.assignments.Send(AssignmentMsg{Notification: n, Payload: p})

	case model.KindAttendance:
		var p model.AttendancePayload
		if !d.decodePayload(n, &p) {
			return
		}
		d.attendance.Send(AttendanceMsg{Notification: n, Payload: p})

	case model.KindInterview:
		var p model.InterviewPayload
		if !d.decodePayload(n, &p) {
			return
		}
		d.interviews.Send(InterviewMsg{Notification: n, Payload: p})

	case model.KindAnnouncement:
		var p model.AnnouncementPayload
		if !d.decodePayload(n, &p) {
			return
		}
		d.announcements.Send(AnnouncementMsg{Notification: n, Payload: p})
	}

	d.mu.Lock()
	d.routed++
	d.mu.Unlock()
}

// decodePayload unmarshals the kind-specific payload. An empty payload
// decodes to the zero value.
func (d *dispatcher) decodePayload(n model.Notification, dst any) bool {
	if len(n.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(n.Payload, dst); err != nil {
		d.logger.Warn("failed to parse notification payload",
			"id", n.ID,
			"kind", n.Kind,
			"error", err,
		)
		d.mu.Lock()
		d.parseErrors++
		d.mu.Unlock()
		return false
	}
	return true
}

// Buffers returns the output buffers.
func (d *dispatcher) Buffers() Buffers {
	return Buffers{
		Inbox:         d.inbox,
		Sessions:      d.sessions,
		Assignments:   d.assignments,
		Attendance:    d.attendance,
		Interviews:    d.interviews,
		Announcements: d.announcements,
	}
}

// Stats returns current statistics.
func (d *dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		Received:     d.received,
		Routed:       d.routed,
		ParseErrors:  d.parseErrors,
		UnknownKinds: d.unknownKinds,
		InboxBuffer:  d.inbox.Stats(),
	}
}

// Close closes all output buffers.
func (d *dispatcher) Close() {
	d.inbox.Close()
	d.sessions.Close()
	d.assignments.Close()
	d.attendance.Close()
	d.interviews.Close()
	d.announcements.Close()
}
