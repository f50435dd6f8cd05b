package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brightloom-labs/docrag/engine/domain"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return newRedisCacheFromClient(client, 50*time.Millisecond)
}

func TestRedisCache_PushAndRange(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	key := Key(1, "sess-a")

	turns := []Turn{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "hi there"},
	}
	for _, turn := range turns {
		if err := cache.Push(ctx, key, turn); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	got, err := cache.RangeLastN(ctx, key, 10)
	if err != nil {
		t.Fatalf("RangeLastN: %v", err)
	}
	if len(got) != 2 || got[0].Content != "hello" || got[1].Content != "hi there" {
		t.Fatalf("unexpected turns: %+v", got)
	}
}

func TestRedisCache_ExistsAndDelete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	key := Key(2, "sess-b")

	if ok, _ := cache.Exists(ctx, key); ok {
		t.Fatal("expected key to not exist yet")
	}

	if err := cache.Push(ctx, key, Turn{Role: domain.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if ok, err := cache.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := cache.Exists(ctx, key); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestRedisCache_RangeLastNOnMissingKeyIsEmpty(t *testing.T) {
	cache := newTestCache(t)
	got, err := cache.RangeLastN(context.Background(), Key(3, "sess-c"), 10)
	if err != nil {
		t.Fatalf("RangeLastN: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no turns, got %+v", got)
	}
}
