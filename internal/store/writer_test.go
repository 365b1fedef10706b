package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classline/notify/internal/config"
	"github.com/classline/notify/internal/dispatch"
	"github.com/classline/notify/internal/model"
)

func testWriterConfig() config.InboxConfig {
	return config.InboxConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
}

func TestWriter_Transform(t *testing.T) {
	input := dispatch.NewGrowableBuffer[model.Notification](10)
	w := NewWriter(testWriterConfig(), input, nil, nil)

	id := uuid.New()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := model.Notification{
		ID:          id,
		RecipientID: "user-7",
		Kind:        model.KindAssignment,
		Title:       "Assignment graded",
		Body:        "Problem set 3 has been graded",
		Payload:     json.RawMessage(`{"assignment_id":"a-1","event":"graded"}`),
		CreatedAt:   createdAt,
	}

	row := w.transform(n)

	if row.ID != id.String() {
		t.Errorf("ID = %s, want %s", row.ID, id)
	}
	if row.RecipientID != "user-7" {
		t.Errorf("RecipientID = %s, want user-7", row.RecipientID)
	}
	if row.Kind != "assignment" {
		t.Errorf("Kind = %s, want assignment", row.Kind)
	}
	if row.Title != "Assignment graded" {
		t.Errorf("Title = %s, want Assignment graded", row.Title)
	}
	if string(row.Payload) != `{"assignment_id":"a-1","event":"graded"}` {
		t.Errorf("Payload = %s", row.Payload)
	}
	if !row.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", row.CreatedAt, createdAt)
	}
	if row.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
	if row.ReadAt != nil {
		t.Errorf("ReadAt = %v, want nil", row.ReadAt)
	}
}

func TestWriter_Transform_EmptyPayload(t *testing.T) {
	input := dispatch.NewGrowableBuffer[model.Notification](10)
	w := NewWriter(testWriterConfig(), input, nil, nil)

	row := w.transform(model.Notification{
		ID:          uuid.New(),
		RecipientID: "user-7",
		Kind:        model.KindAnnouncement,
	})

	if row.Payload != nil {
		t.Errorf("Payload = %v, want nil", row.Payload)
	}
}

func TestWriter_Lifecycle(t *testing.T) {
	input := dispatch.NewGrowableBuffer[model.Notification](10)

	// Note: we can't test actual DB writes without a database.
	// This tests the goroutine lifecycle.
	w := NewWriter(testWriterConfig(), input, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Give goroutines time to start
	time.Sleep(20 * time.Millisecond)

	// Stop should complete without hanging
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWriter_HandleNotification_AddsToBatch(t *testing.T) {
	cfg := config.InboxConfig{
		BatchSize:     100, // Large batch so no auto-flush
		FlushInterval: time.Hour,
	}
	input := dispatch.NewGrowableBuffer[model.Notification](10)
	w := NewWriter(cfg, input, nil, nil)

	w.handleNotification(model.Notification{
		ID:          uuid.New(),
		RecipientID: "user-7",
		Kind:        model.KindSession,
		CreatedAt:   time.Now(),
	})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestWriter_Defaults(t *testing.T) {
	input := dispatch.NewGrowableBuffer[model.Notification](10)
	w := NewWriter(config.InboxConfig{}, input, nil, nil)

	if w.cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", w.cfg.BatchSize)
	}
	if w.cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", w.cfg.FlushInterval)
	}
}

func TestWriter_Stats(t *testing.T) {
	input := dispatch.NewGrowableBuffer[model.Notification](10)
	w := NewWriter(testWriterConfig(), input, nil, nil)

	stats := w.Stats()

	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
}
