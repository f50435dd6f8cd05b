package ingest

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestMsgHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*msgHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestMsgHeaderCarrierNilHeader(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*msgHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestProcessDocumentJobRoundTrips(t *testing.T) {
	job := ProcessDocumentJob{DocumentID: 42}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ProcessDocumentJob
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.DocumentID != 42 {
		t.Errorf("doc id = %d, want 42", decoded.DocumentID)
	}
}
