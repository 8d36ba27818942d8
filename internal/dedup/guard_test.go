package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuards(t *testing.T) map[string]Guard {
	t.Helper()
	mem, err := NewMemoryGuard(100, time.Hour)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Guard{
		"memory": mem,
		"redis":  NewRedisGuard(client, time.Hour),
	}
}

func TestGuardDuplicateSuppression(t *testing.T) {
	ctx := context.Background()
	for name, g := range newGuards(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := g.ShouldProcess(ctx, "C", "U", "100.0", false)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, g.MarkProcessed(ctx, "C", "U", "100.0"))

			ok, err = g.ShouldProcess(ctx, "C", "U", "100.0", false)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = g.ShouldProcess(ctx, "C", "U", "100.0", true)
			require.NoError(t, err)
			assert.False(t, ok, "self-sent events are never processed")
		})
	}
}

func TestGuardRejectsMissingSender(t *testing.T) {
	ctx := context.Background()
	for name, g := range newGuards(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := g.ShouldProcess(ctx, "C", "", "1.0", false)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = g.Claim(ctx, "C", "", "1.0", false)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestGuardOnlyRemembersLatestTimestamp(t *testing.T) {
	ctx := context.Background()
	for name, g := range newGuards(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := g.Claim(ctx, "C", "U", "100.0", false)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = g.Claim(ctx, "C", "U", "100.0", false)
			require.NoError(t, err)
			assert.False(t, ok, "immediate redelivery is dropped")

			ok, err = g.Claim(ctx, "C", "U", "101.0", false)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = g.Claim(ctx, "C", "U", "100.0", false)
			require.NoError(t, err)
			assert.True(t, ok, "redelivery after an intervening message is not caught")
		})
	}
}

func TestGuardKeysAreScopedByChannelAndUser(t *testing.T) {
	ctx := context.Background()
	for name, g := range newGuards(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, g.MarkProcessed(ctx, "C1", "U1", "5.0"))

			ok, err := g.ShouldProcess(ctx, "C2", "U1", "5.0", false)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = g.ShouldProcess(ctx, "C1", "U2", "5.0", false)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestGuardClaimIsAtomic(t *testing.T) {
	ctx := context.Background()
	for name, g := range newGuards(t) {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := g.Claim(ctx, "C", "U", "42.0", false)
					if err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestGuardReleaseAllowsRedelivery(t *testing.T) {
	ctx := context.Background()
	for name, g := range newGuards(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := g.Claim(ctx, "C", "U", "1.0", false)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, g.Release(ctx, "C", "U", "1.0"))
			ok, err = g.Claim(ctx, "C", "U", "1.0", false)
			require.NoError(t, err)
			assert.True(t, ok, "released event is claimable again")

			ok, err = g.Claim(ctx, "C", "U", "2.0", false)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, g.Release(ctx, "C", "U", "1.0"))
			ok, err = g.Claim(ctx, "C", "U", "2.0", false)
			require.NoError(t, err)
			assert.False(t, ok, "stale release leaves the newer claim in place")
		})
	}
}

func TestMemoryGuardEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	g, err := NewMemoryGuard(2, time.Hour)
	require.NoError(t, err)

	require.NoError(t, g.MarkProcessed(ctx, "C", "U1", "1.0"))
	require.NoError(t, g.MarkProcessed(ctx, "C", "U2", "1.0"))
	require.NoError(t, g.MarkProcessed(ctx, "C", "U3", "1.0"))

	assert.Equal(t, 2, g.Len())
	ok, err := g.ShouldProcess(ctx, "C", "U1", "1.0", false)
	require.NoError(t, err)
	assert.True(t, ok, "evicted key is forgotten")
}

func TestMemoryGuardExpiresEntries(t *testing.T) {
	ctx := context.Background()
	g, err := NewMemoryGuard(10, time.Minute)
	require.NoError(t, err)

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	require.NoError(t, g.MarkProcessed(ctx, "C", "U", "1.0"))
	ok, err := g.ShouldProcess(ctx, "C", "U", "1.0", false)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = g.ShouldProcess(ctx, "C", "U", "1.0", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, g.Len())
}
