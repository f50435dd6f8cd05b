package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/brightloom-labs/docrag/engine/domain"
)

// Schema is the append-only events table DDL (spec §6): primary ordering
// (timestamp, event_type), mirroring manifold's ensureClickHouseTables idiom
// of an idempotent CREATE TABLE IF NOT EXISTS applied at boot.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id String,
	timestamp DateTime64(3),
	event_type LowCardinality(String),
	level LowCardinality(String),
	trace_id String,
	user_id Nullable(Int64),
	user_email Nullable(String),
	message String,
	query String,
	response String,
	chunks_json String,
	latency_ms Nullable(Float64),
	token_count Nullable(Int32),
	status LowCardinality(String),
	error_detail String,
	provider String,
	model String
) ENGINE = MergeTree()
ORDER BY (timestamp, event_type)
TTL timestamp + INTERVAL 90 DAY
`

// ClickHouseStore is the columnar Store backing production deployments.
type ClickHouseStore struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// ClickHouseConfig names the connection coordinates spec §6 calls
// "event-store coordinates".
type ClickHouseConfig struct {
	DSN     string
	Timeout time.Duration
}

// NewClickHouseStore opens a connection, ensures the events table exists,
// and returns a ready Store.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("observability: parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("observability: open clickhouse: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("observability: ping clickhouse: %w", err)
	}

	createCtx, cancel2 := context.WithTimeout(ctx, timeout)
	defer cancel2()
	if err := conn.Exec(createCtx, Schema); err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, fmt.Errorf("observability: create events table: %w", err)
	}

	return &ClickHouseStore{conn: conn, table: "events", timeout: timeout}, nil
}

func (s *ClickHouseStore) Insert(ctx context.Context, e domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("observability: prepare batch: %w", err)
	}

	var latency *float64
	if e.LatencyMs != nil {
		latency = e.LatencyMs
	}
	var tokenCount *int32
	if e.TokenCount != nil {
		v := int32(*e.TokenCount)
		tokenCount = &v
	}

	err = batch.Append(
		e.ID, e.Timestamp, string(e.Type), string(e.Level), e.TraceID,
		e.UserID, e.UserEmail, e.Message, e.Query, e.Response, e.ChunksJSON,
		latency, tokenCount, string(e.Status), e.ErrorDetail, e.Provider, e.Model,
	)
	if err != nil {
		return fmt.Errorf("observability: append row: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("observability: send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) Query(ctx context.Context, f Filter) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var clauses []string
	var args []any

	if f.Type != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Level != "" {
		clauses = append(clauses, "level = ?")
		args = append(args, string(f.Level))
	}
	if f.TraceID != "" {
		clauses = append(clauses, "trace_id = ?")
		args = append(args, f.TraceID)
	}
	if f.UserID != 0 {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.Until)
	}
	if f.Search != "" {
		clauses = append(clauses, "(positionCaseInsensitive(message, ?) > 0 OR positionCaseInsensitive(query, ?) > 0)")
		args = append(args, f.Search, f.Search)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	query := fmt.Sprintf(`
SELECT id, timestamp, event_type, level, trace_id, user_id, user_email, message,
       query, response, chunks_json, latency_ms, token_count, status, error_detail,
       provider, model
FROM %s
%s
ORDER BY timestamp DESC, event_type
LIMIT ? OFFSET ?`, s.table, where)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e           domain.Event
			eventType   string
			level       string
			status      string
			latencyMs   *float64
			tokenCount  *int32
			userID      *int64
			userEmail   *string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &level, &e.TraceID, &userID, &userEmail,
			&e.Message, &e.Query, &e.Response, &e.ChunksJSON, &latencyMs, &tokenCount, &status,
			&e.ErrorDetail, &e.Provider, &e.Model); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		e.Type = domain.EventType(eventType)
		e.Level = domain.EventLevel(level)
		e.Status = domain.EventStatus(status)
		e.UserID = userID
		e.UserEmail = userEmail
		e.LatencyMs = latencyMs
		if tokenCount != nil {
			v := int(*tokenCount)
			e.TokenCount = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Histogram(ctx context.Context, window time.Duration) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if window <= 0 {
		window = 24 * time.Hour
	}
	since := time.Now().Add(-window)

	query := fmt.Sprintf(`
SELECT toStartOfHour(timestamp) AS hour, event_type, count() AS cnt
FROM %s
WHERE timestamp >= ?
GROUP BY hour, event_type
ORDER BY hour ASC`, s.table)

	rows, err := s.conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("observability: histogram query: %w", err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		var eventType string
		if err := rows.Scan(&b.HourStart, &eventType, &b.Count); err != nil {
			return nil, fmt.Errorf("observability: scan bucket: %w", err)
		}
		b.Type = domain.EventType(eventType)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
