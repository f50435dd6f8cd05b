package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brightloom-labs/docrag/engine/domain"
)

// fakeRow is a rowScanner stub that copies a fixed sequence of values into
// whatever destination pointers scanDocument/scanConversation/scanMessage
// pass to Scan, mirroring pgx.Row without a live connection.
type fakeRow struct {
	values []any
	err    error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.values) {
		return errors.New("fakeRow: dest/value count mismatch")
	}
	for i, d := range dest {
		if err := assign(d, f.values[i]); err != nil {
			return err
		}
	}
	return nil
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *int64:
		*d = value.(int64)
	case *string:
		*d = value.(string)
	case **string:
		*d = value.(*string)
	case *domain.DocumentStatus:
		*d = value.(domain.DocumentStatus)
	case *domain.MessageRole:
		*d = value.(domain.MessageRole)
	case *int:
		*d = value.(int)
	case **int64:
		*d = value.(*int64)
	case *time.Time:
		*d = value.(time.Time)
	default:
		return errors.New("assign: unsupported destination type")
	}
	return nil
}

func TestScanDocument(t *testing.T) {
	now := time.Now()
	errMsg := "boom"
	taskHandle := "task-1"

	row := fakeRow{values: []any{
		int64(7), "manual.pdf", "hash123", int64(2), "docs/7.pdf", (*string)(nil),
		domain.StatusFailed, &errMsg, 12, &taskHandle, now, now,
	}}

	doc, err := scanDocument(row)
	if err != nil {
		t.Fatalf("scanDocument: %v", err)
	}
	if doc.ID != 7 || doc.DisplayName != "manual.pdf" || doc.Status != domain.StatusFailed {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.ErrorMessage != "boom" || doc.TaskHandle != "task-1" {
		t.Fatalf("nullable fields not dereferenced: %+v", doc)
	}
}

func TestScanDocument_NoRows(t *testing.T) {
	row := fakeRow{err: pgx.ErrNoRows}

	_, err := scanDocument(row)
	if !errors.Is(err, domain.ErrDocumentMissing) {
		t.Fatalf("expected ErrDocumentMissing, got %v", err)
	}
	if domain.KindOf(err) != domain.KindDataConsistency {
		t.Fatalf("expected KindDataConsistency, got %v", domain.KindOf(err))
	}
}

func TestScanDocument_NilOptionalFields(t *testing.T) {
	now := time.Now()
	row := fakeRow{values: []any{
		int64(1), "doc.pdf", "hash", int64(1), "", (*string)(nil),
		domain.StatusPending, (*string)(nil), 0, (*string)(nil), now, now,
	}}

	doc, err := scanDocument(row)
	if err != nil {
		t.Fatalf("scanDocument: %v", err)
	}
	if doc.ErrorMessage != "" || doc.TaskHandle != "" {
		t.Fatalf("expected empty strings for nil optional fields, got %+v", doc)
	}
}

func TestScanConversation(t *testing.T) {
	now := time.Now()
	groupID := int64(5)
	row := fakeRow{values: []any{int64(3), int64(9), "first question", &groupID, now, now}}

	conv, err := scanConversation(row)
	if err != nil {
		t.Fatalf("scanConversation: %v", err)
	}
	if conv.ID != 3 || conv.UserID != 9 || conv.GroupID == nil || *conv.GroupID != 5 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestScanMessage(t *testing.T) {
	now := time.Now()
	sourcesJSON := `[{"filename":"a.pdf"}]`
	intentLabel := "technical"
	row := fakeRow{values: []any{int64(1), int64(3), domain.RoleAssistant, "the answer", &sourcesJSON, &intentLabel, now}}

	msg, err := scanMessage(row)
	if err != nil {
		t.Fatalf("scanMessage: %v", err)
	}
	if msg.Role != domain.RoleAssistant || msg.SourcesJSON != sourcesJSON || msg.Intent != intentLabel {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
