package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestMemoryStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("hello, world!")
	etag, err := store.Put(ctx, "docs/file.pdf", bytes.NewReader(content), PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if etag == "" {
		t.Error("expected a non-empty etag")
	}

	r, attrs, err := store.Get(ctx, "docs/file.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("got %q, want %q", data, content)
	}
	if attrs.Size != int64(len(content)) || attrs.ContentType != "application/pdf" {
		t.Errorf("unexpected attrs: %+v", attrs)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, _, err := store.Get(ctx, "missing")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Put(ctx, "key", bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "key"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_Stat(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("test content")
	if _, err := store.Put(ctx, "test.txt", bytes.NewReader(content), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	attrs, err := store.Stat(ctx, "test.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if attrs.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", attrs.Size, len(content))
	}

	if _, err := store.Stat(ctx, "nonexistent"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_PresignGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Put(ctx, "doc.pdf", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	url, err := store.PresignGet(ctx, "doc.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if url == "" {
		t.Error("expected a non-empty presigned URL")
	}

	if _, err := store.PresignGet(ctx, "missing.pdf", time.Minute); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
