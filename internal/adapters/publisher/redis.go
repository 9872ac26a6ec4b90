// Package publisher holds status sinks and the fan-out that feeds them.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/saltyscope/internal/domain/model"
)

// DefaultStream is the stream key snapshots are appended to.
const DefaultStream = "saltyscope.status"

// defaultMaxLen keeps the stream bounded (approximate trimming).
const defaultMaxLen = 10_000

// StreamPublisher appends snapshots to a Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
}

var _ model.Publisher = (*StreamPublisher)(nil)

// NewStreamPublisher creates a publisher writing to stream (DefaultStream when empty).
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{client: client, stream: stream}
}

// Publish XADDs the snapshot.
func (p *StreamPublisher) Publish(ctx context.Context, s model.Snapshot) error {
	values, err := Values(s)
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: defaultMaxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// Values is the stream entry for s.
func Values(s model.Snapshot) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return map[string]interface{}{
		"data":     string(data),
		"match_id": s.MatchID,
		"reason":   s.Reason.String(),
		"open":     s.WindowOpen,
	}, nil
}
