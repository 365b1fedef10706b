package dispatch

import (
	"github.com/classline/notify/internal/model"
)

// Config holds dispatcher configuration.
type Config struct {
	InboxBufferSize int // initial capacity of the inbox buffer
	KindBufferSize  int // initial capacity of each per-kind buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InboxBufferSize: 256,
		KindBufferSize:  64,
	}
}

// SessionMsg is a session notification with its payload decoded.
type SessionMsg struct {
	Notification model.Notification
	Payload      model.SessionPayload
}

// AssignmentMsg is an assignment notification with its payload decoded.
type AssignmentMsg struct {
	Notification model.Notification
	Payload      model.AssignmentPayload
}

// AttendanceMsg is an attendance notification with its payload decoded.
type AttendanceMsg struct {
	Notification model.Notification
	Payload      model.AttendancePayload
}

// InterviewMsg is an interview notification with its payload decoded.
type InterviewMsg struct {
	Notification model.Notification
	Payload      model.InterviewPayload
}

// AnnouncementMsg is an announcement notification with its payload decoded.
type AnnouncementMsg struct {
	Notification model.Notification
	Payload      model.AnnouncementPayload
}

// Buffers exposes the dispatcher's output buffers to consumers.
type Buffers struct {
	// Inbox carries every valid notification, regardless of kind, for
	// the persistence path.
	Inbox *GrowableBuffer[model.Notification]

	Sessions      *GrowableBuffer[SessionMsg]
	Assignments   *GrowableBuffer[AssignmentMsg]
	Attendance    *GrowableBuffer[AttendanceMsg]
	Interviews    *GrowableBuffer[InterviewMsg]
	Announcements *GrowableBuffer[AnnouncementMsg]
}

// Stats contains runtime statistics.
type Stats struct {
	Received     int64
	Routed       int64
	ParseErrors  int64
	UnknownKinds int64
	InboxBuffer  BufferStats
}
