// Package session implements spec §4.11's short-term recency cache: an
// ordered, TTL-scoped list of role/content records per session key, with a
// durable-store fallback when the cache is empty or unreachable
// (RPUSH/LRANGE/DEL/EXISTS plus TTL).
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/brightloom-labs/docrag/engine/domain"
)

// DefaultTTL is the recency cache's default session lifetime (spec §4.11).
const DefaultTTL = time.Hour

// DefaultDurableFallback is how many of the most recent durable messages are
// used when the cache is empty or unreachable (spec §4.11).
const DefaultDurableFallback = 10

// Turn is one role/content record held in the recency cache.
type Turn struct {
	Role    domain.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// Cache is the short-term recency cache contract: push-right, range-read
// last N, delete, exists. A read against an unreachable cache returns an
// error (RedisCache wraps the client error); History treats that error the
// same as an empty result and falls through to the durable store.
type Cache interface {
	Push(ctx context.Context, sessionKey string, turn Turn) error
	RangeLastN(ctx context.Context, sessionKey string, n int) ([]Turn, error)
	Delete(ctx context.Context, sessionKey string) error
	Exists(ctx context.Context, sessionKey string) (bool, error)
}

// DurableHistory is the subset of engine/store.ConversationStore that the
// history fallback needs.
type DurableHistory interface {
	RecentMessages(ctx context.Context, conversationID int64, n int) ([]domain.Message, error)
}

// Key derives the recency-cache session key from a user id and a per-session
// uuid, per spec §4.11 ("per session key (derived from user id + uuid)").
func Key(userID int64, sessionID string) string {
	return "session:" + strconv.FormatInt(userID, 10) + ":" + sessionID
}

// History returns the turns to pass to the generator: the cache's contents
// when non-empty (preferred), otherwise the most recent durable messages in
// chronological order (fallback). A cache read error is treated the same as
// an empty cache, per spec §4.11. On a fallback, the cache is warmed with
// the durable turns before returning, per spec.md §9 Open Question (b)
// (decided in favor of warm-on-read, DESIGN.md).
func History(ctx context.Context, cache Cache, sessionKey string, durable DurableHistory, conversationID int64) []Turn {
	if cache != nil {
		if turns, err := cache.RangeLastN(ctx, sessionKey, DefaultDurableFallback); err == nil && len(turns) > 0 {
			return turns
		}
	}

	if durable == nil || conversationID == 0 {
		return nil
	}
	msgs, err := durable.RecentMessages(ctx, conversationID, DefaultDurableFallback)
	if err != nil {
		return nil
	}

	turns := make([]Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = Turn{Role: m.Role, Content: m.Content}
	}

	if cache != nil {
		for _, t := range turns {
			_ = cache.Push(ctx, sessionKey, t)
		}
	}
	return turns
}
