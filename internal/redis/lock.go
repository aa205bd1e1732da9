package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript takes the lease if it is free, or renews it if the caller
// already holds it.
var acquireScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// releaseScript deletes the lease only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore hands out named leases so that periodic jobs run on one
// instance at a time.
type LockStore struct {
	client *redis.Client
	owner  string
}

// NewLockStore creates a new LockStore. owner identifies this instance.
func NewLockStore(client *redis.Client, owner string) *LockStore {
	return &LockStore{client: client, owner: owner}
}

// Acquire takes or renews the named lease for ttl.
// Returns false if another owner holds it.
func (s *LockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:job:%s", name)

	n, err := acquireScript.Run(ctx, s.client, []string{key}, s.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// Release gives the lease back if this instance still owns it.
func (s *LockStore) Release(ctx context.Context, name string) error {
	key := fmt.Sprintf("lock:job:%s", name)

	return releaseScript.Run(ctx, s.client, []string{key}, s.owner).Err()
}
