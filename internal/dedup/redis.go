package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the given timestamp.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares handled-event state between processes.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if client == nil {
		panic("dedup: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) ShouldProcess(ctx context.Context, channelID, userID, eventTS string, senderIsSelf bool) (bool, error) {
	if rejectSender(userID, senderIsSelf) {
		return false, nil
	}
	last, err := g.client.Get(ctx, redisKey(channelID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: read handled event: %w", err)
	}
	return last != eventTS, nil
}

func (g *RedisGuard) MarkProcessed(ctx context.Context, channelID, userID, eventTS string) error {
	if err := g.client.Set(ctx, redisKey(channelID, userID), eventTS, g.ttl).Err(); err != nil {
		return fmt.Errorf("dedup: record handled event: %w", err)
	}
	return nil
}

// Claim swaps in eventTS with SET ... GET so concurrent deliveries observe
// each other.
func (g *RedisGuard) Claim(ctx context.Context, channelID, userID, eventTS string, senderIsSelf bool) (bool, error) {
	if rejectSender(userID, senderIsSelf) {
		return false, nil
	}
	prev, err := g.client.SetArgs(ctx, redisKey(channelID, userID), eventTS, redis.SetArgs{
		TTL: g.ttl,
		Get: true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: claim event: %w", err)
	}
	return prev != eventTS, nil
}

func (g *RedisGuard) Release(ctx context.Context, channelID, userID, eventTS string) error {
	if err := releaseScript.Run(ctx, g.client, []string{redisKey(channelID, userID)}, eventTS).Err(); err != nil {
		return fmt.Errorf("dedup: release event: %w", err)
	}
	return nil
}

func redisKey(channelID, userID string) string {
	return fmt.Sprintf("dedup:%s", eventKey(channelID, userID))
}
