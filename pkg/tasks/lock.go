package tasks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func ticketLockKey(ticketID uuid.UUID) string {
	return "callcenter:lock:ticket:" + ticketID.String()
}

// Locker serializes work on one ticket across workers and processes.
type Locker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewLocker creates a Locker whose locks expire after ttl if never released.
func NewLocker(rdb redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// TryLock takes the ticket lock without waiting. It returns ok=false when
// another worker holds it. The release func must be called when ok is true.
func (l *Locker) TryLock(ctx context.Context, ticketID uuid.UUID) (release func(), ok bool, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, fmt.Errorf("generating lock token: %w", err)
	}
	token := hex.EncodeToString(buf)
	key := ticketLockKey(ticketID)

	err = l.rdb.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquiring ticket lock: %w", err)
	}

	release = func() {
		// The caller's context may already be cancelled during shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
