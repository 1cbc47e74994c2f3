package sink

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to a local Redis on DB 15 or skips the test.
// Containerised runs live in redis_integration_test.go.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// assertStream checks that stream holds want records from source, in order.
func assertStream(t *testing.T, client *redis.Client, stream, source string, want []string) {
	t.Helper()

	msgs, err := client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, len(want))
	for i, msg := range msgs {
		assert.Equal(t, source, msg.Values["source"])
		assert.JSONEq(t, want[i], msg.Values["record"].(string))
	}
}

func TestRedisStream_Accept(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	s := NewRedisStream(client, StreamName("harvester", "orders"), "orders", 0)
	assert.Equal(t, "harvester:orders:records", s.Stream())

	records := []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}
	for _, r := range records {
		require.NoError(t, s.Accept(ctx, raw(r)))
	}

	assertStream(t, client, s.Stream(), "orders", records)
}

func TestRedisStream_NilClientPanics(t *testing.T) {
	assert.Panics(t, func() { NewRedisStream(nil, "s", "src", 0) })
}
