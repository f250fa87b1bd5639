package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Processing is claimed for a key when CheckAndSet gets no response.
const Processing = "processing"

const idempotencyNamespace = "golend:idempotency:"

// claimScript returns the current value of KEYS[1], or stores ARGV[1] with a
// TTL of ARGV[2] milliseconds and returns nil. Zero means no expiry.
var claimScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	return current
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return false
`)

// IdempotencyStore implements usecase.IdempotencyStore. A key is claimed
// and read back in one script call, so a racing duplicate always sees the
// winner's value.
type IdempotencyStore struct {
	client scriptingClient
	prefix string
}

type scriptingClient interface {
	redis.Scripter
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func NewIdempotencyStore(client scriptingClient) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: idempotencyNamespace}
}

// CheckAndSet claims key with response, or with Processing when response is
// nil. An existing claim is reported as (true, storedValue).
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	value := response
	if value == nil {
		value = []byte(Processing)
	}

	current, err := claimScript.Run(ctx, s.client, []string{s.prefix + key}, value, ttl.Milliseconds()).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil, nil
	case err != nil:
		return false, nil, err
	}
	return true, []byte(current), nil
}

// Update replaces the claim with the final response.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, response, ttl).Err()
}

// Release drops the key so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
