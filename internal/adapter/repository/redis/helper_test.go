package redis

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
)

// fakeRedis is an in-process server plus a client pointed at it. Both are
// closed when the test ends.
type fakeRedis struct {
	server *miniredis.Miniredis
	client *redislib.Client
}

func startFakeRedis(t *testing.T) fakeRedis {
	t.Helper()
	server := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return fakeRedis{server: server, client: client}
}
