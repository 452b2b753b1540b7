package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKey    = "fleet:snapshot"
	snapshotTTL    = 10 * time.Minute
	UpdatesChannel = "fleet:updates"
)

// UpdateMessage 通过 Redis Pub/Sub 广播给 WebSocket 前端的事件。
type UpdateMessage struct {
	Event         string    `json:"event"`
	GeneratedAt   time.Time `json:"generated_at"`
	DeviceCount   int       `json:"device_count"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// SnapshotStore 把最新快照存入 Redis，供 API 读取、供前端订阅变更。
type SnapshotStore struct {
	client *redis.Client
}

// NewSnapshotStore 构造快照存取器。
func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// Save 覆盖存储最新快照。
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Load 读取最新快照；found=false 表示尚未生成或已过期。
func (s *SnapshotStore) Load(ctx context.Context) (Snapshot, bool, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Publish 广播一次更新事件。
func (s *SnapshotStore) Publish(ctx context.Context, msg UpdateMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode update message: %w", err)
	}
	return s.PublishRaw(ctx, data)
}

// PublishRaw 把已编码的消息原样广播到更新频道。
func (s *SnapshotStore) PublishRaw(ctx context.Context, data []byte) error {
	if err := s.client.Publish(ctx, UpdatesChannel, data).Err(); err != nil {
		return fmt.Errorf("publish update message: %w", err)
	}
	return nil
}
