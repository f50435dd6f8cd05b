package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brightloom-labs/docrag/engine/domain"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one two three four five", 7}, // ceil(5*1.3) = 7
		{"single", 2},                  // ceil(1*1.3) = 2
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestNewTraceIDIsUnique(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	if a == "" || b == "" || a == b {
		t.Errorf("expected distinct non-empty trace ids, got %q and %q", a, b)
	}
}

func TestObserver_EmitInsertsAndBroadcasts(t *testing.T) {
	store := NewMemoryStore()
	hub := NewHub()
	o := New(store, hub, nil)

	sub, cancel := hub.Subscribe()
	defer cancel()

	err := o.Emit(context.Background(), domain.Event{
		Type:    domain.EventRequest,
		TraceID: "trace-1",
		Message: "hello",
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case p := <-sub:
		if p.TraceID != "trace-1" {
			t.Errorf("projection trace id = %q, want trace-1", p.TraceID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast projection")
	}

	got, err := store.Query(context.Background(), Filter{TraceID: "trace-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Error("expected an auto-assigned event id")
	}
}

func TestHub_BroadcastPrunesFullSubscribers(t *testing.T) {
	hub := NewHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	// Fill the buffer beyond capacity so the next broadcast finds it full.
	for i := 0; i < 64; i++ {
		hub.Broadcast(Projection{Message: "x"})
	}

	if hub.SubscriberCount() != 0 {
		t.Errorf("expected the slow subscriber to be pruned, count = %d", hub.SubscriberCount())
	}

	// Drain whatever made it into the channel before closure; should not panic.
	for range sub {
	}
}

func TestObserver_LogResponseMarksErrorLevel(t *testing.T) {
	store := NewMemoryStore()
	o := New(store, nil, nil)

	o.LogResponse(context.Background(), "trace-2", "q", "", "", 7, 120, domain.StatusError, "boom")

	got, err := store.Query(context.Background(), Filter{TraceID: "trace-2"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Level != domain.LevelError {
		t.Errorf("level = %s, want error", got[0].Level)
	}
	if got[0].UserID == nil || *got[0].UserID != 7 {
		t.Errorf("expected user id 7, got %+v", got[0].UserID)
	}
}

func TestObserver_LogErrorRecordsCause(t *testing.T) {
	store := NewMemoryStore()
	o := New(store, nil, nil)

	o.LogError(context.Background(), domain.EventSystem, "trace-3", "ingest crashed", errors.New("disk full"))

	got, err := store.Query(context.Background(), Filter{TraceID: "trace-3"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ErrorDetail != "disk full" {
		t.Fatalf("expected recorded error detail, got %+v", got)
	}
}

func TestMemoryStore_HistogramGroupsByHourAndType(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	store.events = []domain.Event{
		{Type: domain.EventRequest, Timestamp: now},
		{Type: domain.EventRequest, Timestamp: now},
		{Type: domain.EventResponse, Timestamp: now},
	}

	buckets, err := store.Histogram(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}

	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	if total != 3 {
		t.Errorf("total count = %d, want 3", total)
	}
}
