package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the classroom event a notification describes.
type Kind string

// Notification kinds emitted by the Classline backend.
const (
	KindSession      Kind = "session"      // session scheduled / started / ended
	KindAssignment   Kind = "assignment"   // assignment created, updated, or graded
	KindAttendance   Kind = "attendance"   // attendance marked for a session
	KindInterview    Kind = "interview"    // voice interview scheduled
	KindAnnouncement Kind = "announcement" // free-form course announcement
)

// Valid reports whether k is a kind this client knows how to route.
func (k Kind) Valid() bool {
	switch k {
	case KindSession, KindAssignment, KindAttendance, KindInterview, KindAnnouncement:
		return true
	}
	return false
}

// Notification is the wire envelope delivered over the push channel and
// returned by the REST notifications endpoint. Payload stays raw JSON
// until the dispatcher parses it by kind.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	RecipientID string          `json:"recipient_id"`
	Kind        Kind            `json:"kind"`
	Title       string          `json:"title"`
	Body        string          `json:"body,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

// Parse decodes and validates a notification envelope.
func Parse(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("parse notification: %w", err)
	}
	if n.ID == uuid.Nil {
		return Notification{}, fmt.Errorf("notification missing id")
	}
	if n.RecipientID == "" {
		return Notification{}, fmt.Errorf("notification %s missing recipient", n.ID)
	}
	if n.Kind == "" {
		return Notification{}, fmt.Errorf("notification %s missing kind", n.ID)
	}
	return n, nil
}

// SessionPayload is the payload for KindSession notifications.
type SessionPayload struct {
	SessionID string    `json:"session_id"`
	CourseID  string    `json:"course_id"`
	Event     string    `json:"event"` // scheduled, started, ended, cancelled
	StartsAt  time.Time `json:"starts_at"`
	Room      string    `json:"room,omitempty"`
}

// AssignmentPayload is the payload for KindAssignment notifications.
type AssignmentPayload struct {
	AssignmentID string    `json:"assignment_id"`
	CourseID     string    `json:"course_id"`
	Event        string    `json:"event"` // created, updated, due_soon, graded
	DueAt        time.Time `json:"due_at"`
}

// AttendancePayload is the payload for KindAttendance notifications.
type AttendancePayload struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"` // present, absent, late, excused
}

// InterviewPayload is the payload for KindInterview notifications.
type InterviewPayload struct {
	InterviewID string    `json:"interview_id"`
	CourseID    string    `json:"course_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Minutes     int       `json:"minutes"`
}

// AnnouncementPayload is the payload for KindAnnouncement notifications.
type AnnouncementPayload struct {
	CourseID string `json:"course_id,omitempty"`
	AuthorID string `json:"author_id,omitempty"`
}
