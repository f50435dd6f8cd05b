package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/brightloom-labs/docrag/engine/domain"
)

// MemoryStore is an in-process Store for tests and local development,
// mirroring pkg/objectstore.MemoryStore's role as an in-memory test double
// for its adapter interface.
type MemoryStore struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, f Filter) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		if f.TraceID != "" && e.TraceID != f.TraceID {
			continue
		}
		if f.UserID != 0 && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.Search != "" && !containsFold(e.Message, f.Search) && !containsFold(e.Query, f.Search) {
			continue
		}
		matched = append(matched, e)
	}

	offset := f.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) Histogram(_ context.Context, window time.Duration) ([]Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if window <= 0 {
		window = 24 * time.Hour
	}
	since := time.Now().Add(-window)

	counts := make(map[Bucket]int64)
	for _, e := range m.events {
		if e.Timestamp.Before(since) {
			continue
		}
		key := Bucket{HourStart: e.Timestamp.Truncate(time.Hour), Type: e.Type}
		counts[key]++
	}

	out := make([]Bucket, 0, len(counts))
	for key, n := range counts {
		key.Count = n
		out = append(out, key)
	}
	return out, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
