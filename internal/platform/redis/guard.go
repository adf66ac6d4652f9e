package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard implements task.Guard on Redis with SET NX + TTL. The marker is
// shared across worker processes, which is what makes duplicate
// suppression hold when a redelivered task lands on a different worker.
type Guard struct {
	client *redis.Client
}

// NewGuard creates a Guard on the given client.
func NewGuard(client *redis.Client) *Guard {
	return &Guard{client: client}
}

// Acquire sets the marker for key if absent. The marker expires on its
// own; there is no release.
func (g *Guard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, "taskwell:idem:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set idempotency marker: %w", err)
	}
	return ok, nil
}
