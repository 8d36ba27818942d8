package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultMaxEntries = 10000
	DefaultTTL        = time.Hour
)

type handledEvent struct {
	ts     string
	seenAt time.Time
}

// MemoryGuard keeps the last handled timestamp per key in a bounded LRU.
// Entries older than ttl count as absent.
type MemoryGuard struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryGuard(maxEntries int, ttl time.Duration) (*MemoryGuard, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("dedup: create lru: %w", err)
	}
	return &MemoryGuard{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (g *MemoryGuard) ShouldProcess(_ context.Context, channelID, userID, eventTS string, senderIsSelf bool) (bool, error) {
	if rejectSender(userID, senderIsSelf) {
		return false, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.seen(eventKey(channelID, userID), eventTS), nil
}

func (g *MemoryGuard) MarkProcessed(_ context.Context, channelID, userID, eventTS string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Add(eventKey(channelID, userID), handledEvent{ts: eventTS, seenAt: g.now()})
	return nil
}

func (g *MemoryGuard) Claim(_ context.Context, channelID, userID, eventTS string, senderIsSelf bool) (bool, error) {
	if rejectSender(userID, senderIsSelf) {
		return false, nil
	}
	key := eventKey(channelID, userID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen(key, eventTS) {
		return false, nil
	}
	g.cache.Add(key, handledEvent{ts: eventTS, seenAt: g.now()})
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, channelID, userID, eventTS string) error {
	key := eventKey(channelID, userID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.cache.Peek(key); ok && v.(handledEvent).ts == eventTS {
		g.cache.Remove(key)
	}
	return nil
}

// Len reports the number of tracked keys.
func (g *MemoryGuard) Len() int {
	return g.cache.Len()
}

// seen must be called with mu held.
func (g *MemoryGuard) seen(key, eventTS string) bool {
	v, ok := g.cache.Get(key)
	if !ok {
		return false
	}
	last := v.(handledEvent)
	if g.now().Sub(last.seenAt) > g.ttl {
		g.cache.Remove(key)
		return false
	}
	return last.ts == eventTS
}
