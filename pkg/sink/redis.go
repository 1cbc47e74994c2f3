package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen bounds streams created by RedisStream.
const DefaultStreamMaxLen = 1_000_000

// RedisStream appends each record to a Redis stream with XADD. The entry
// carries the source name and the record JSON.
type RedisStream struct {
	client *redis.Client
	stream string
	source string
	maxLen int64
}

// NewRedisStream returns a sink appending to stream. maxLen <= 0 selects
// DefaultStreamMaxLen; trimming is approximate.
func NewRedisStream(client *redis.Client, stream, source string, maxLen int64) *RedisStream {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisStream{
		client: client,
		stream: stream,
		source: source,
		maxLen: maxLen,
	}
}

// StreamName returns the stream key for source under prefix.
func StreamName(prefix, source string) string {
	return fmt.Sprintf("%s:%s:records", prefix, source)
}

// Accept implements Sink. The XADD round trip is the acknowledgement.
func (s *RedisStream) Accept(ctx context.Context, record json.RawMessage) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"source": s.source,
			"record": string(record),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the stream key.
func (s *RedisStream) Stream() string {
	return s.stream
}
