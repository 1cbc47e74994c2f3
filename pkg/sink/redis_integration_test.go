//go:build integration

package sink

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start Redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "Redis endpoint")

	client := redis.NewClient(&redis.Options{Addr: endpoint})

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})

	return client
}

func TestIntegration_RedisStream(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()

	s := NewRedisStream(client, StreamName("it", "events"), "events", 5)
	want := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec := `{"n":` + string(rune('0'+i)) + `}`
		want = append(want, rec)
		require.NoError(t, s.Accept(ctx, raw(rec)))
	}

	assertStream(t, client, s.Stream(), "events", want)
}
