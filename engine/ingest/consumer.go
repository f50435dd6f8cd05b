package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/brightloom-labs/docrag/pkg/natsutil"
)

const (
	// ProcessDocumentSubject is the broker subject for spec §6's
	// process_document(doc_id) job contract.
	ProcessDocumentSubject = "docrag.ingest.process_document"
	// ConsumerName is the durable JetStream consumer name for the worker domain.
	ConsumerName = "ingest-worker"
	// DefaultVisibilityTimeout bounds how long a job may run before JetStream
	// considers the consumer dead and redelivers it; it must be at least the
	// worst-case worker runtime (MaxRetries retries each bounded by the
	// extractor/embedder/indexer call timeouts).
	DefaultVisibilityTimeout = 15 * time.Minute
)

// ProcessDocumentJob is the broker message body: a bare document id.
type ProcessDocumentJob struct {
	DocumentID int64 `json:"doc_id"`
}

// PublishProcessDocument enqueues a process_document job for docID, injecting
// the caller's trace context into the message headers so the trace id from
// spec §4.10 stays attached across the broker hop. Called by cmd/api's upload
// handler immediately after the document row is created, so extraction never
// runs on the request path (spec §6 upload-surface contract).
func PublishProcessDocument(ctx context.Context, nc *nats.Conn, docID int64) error {
	return natsutil.Publish(ctx, nc, ProcessDocumentSubject, ProcessDocumentJob{DocumentID: docID})
}

// msgHeaderCarrier adapts nats.Msg headers for OTel's TextMapCarrier so a
// consumer can resume the trace a publisher started.
type msgHeaderCarrier nats.Msg

func (c *msgHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *msgHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *msgHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = (*msgHeaderCarrier)(nil)

// StartConsumer subscribes a durable JetStream consumer that runs each
// process_document job through w.Run. Worker.Run already owns the
// retry-until-terminal-failure bookkeeping described in spec §4.9/§7, so the
// message is acknowledged once Run returns regardless of outcome — a
// terminal failure is recorded on the document row, not re-delivered.
// JetStream redelivers only when the process crashes before the ack is sent,
// satisfying spec §6's "requeue on crash" broker guarantee.
func StartConsumer(js nats.JetStreamContext, w *Worker, visibilityTimeout time.Duration) (*nats.Subscription, error) {
	log := w.logger()
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}

	return js.Subscribe(ProcessDocumentSubject, func(msg *nats.Msg) {
		var job ProcessDocumentJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Error("ingest: consumer unmarshal failed", "error", err)
			_ = msg.Term()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*msgHeaderCarrier)(msg))
		if err := w.Run(ctx, job.DocumentID); err != nil {
			log.Error("ingest: consumer run failed", "doc_id", job.DocumentID, "error", err)
		}

		if err := msg.Ack(); err != nil {
			log.Error("ingest: ack failed", "doc_id", job.DocumentID, "error", err)
		}
	}, nats.Durable(ConsumerName), nats.ManualAck(), nats.AckWait(visibilityTimeout))
}
