package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another process holds the critical section.
var ErrLockHeld = errors.New("lock already held")

// LorryLockKey builds redis keys for lorry lifecycle critical sections.
func LorryLockKey(lorryID int64) string {
	return fmt.Sprintf("lorry:%d:lock", lorryID)
}

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Mutex is a redis-backed mutex for cross-instance critical sections. Lorry
// status transitions and batch processing serialize on it so two concurrent
// requests cannot both move the same lorry.
type Mutex struct {
	client *redis.Client
}

// NewMutex constructs a Mutex. A nil client yields a no-op mutex, which keeps
// single-instance deployments and unit tests working without redis.
func NewMutex(client *redis.Client) *Mutex {
	return &Mutex{client: client}
}

// Acquire takes the named lock for at most ttl and returns a release func.
// It does not block: a held lock returns ErrLockHeld immediately.
func (m *Mutex) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if m == nil || m.client == nil {
		return func() {}, nil
	}

	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(releaseCtx, m.client, []string{key}, token).Result()
	}
	return release, nil
}
