// Package redis implements checkpoint persistence on Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tidbots/image-preprocess/internal/store"
)

const keyPrefix = "preprocess:checkpoint:"

// CheckpointStore keeps one JSON value per stream under
// preprocess:checkpoint:<stream>.
type CheckpointStore struct {
	client *redis.Client
}

func NewCheckpointStore(url string) (*CheckpointStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &CheckpointStore{client: client}, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp store.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, checkpointKey(cp.Stream), payload, 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", cp.Stream, err)
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context, stream string) (store.Checkpoint, bool, error) {
	raw, err := s.client.Get(ctx, checkpointKey(stream)).Bytes()
	if err == redis.Nil {
		return store.Checkpoint{}, false, nil
	}
	if err != nil {
		return store.Checkpoint{}, false, fmt.Errorf("load checkpoint for %s: %w", stream, err)
	}

	var cp store.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return store.Checkpoint{}, false, fmt.Errorf("decode checkpoint for %s: %w", stream, err)
	}
	return cp, true, nil
}

func (s *CheckpointStore) Close() error {
	return s.client.Close()
}

func checkpointKey(stream string) string {
	return keyPrefix + stream
}
