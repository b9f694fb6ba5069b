// Package store caches the latest live reading of each monitored patient in
// redis so roster views can show it without opening a stream of their own.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/config"
)

// DefaultTTL is how long a live snapshot survives without a refresh.
const DefaultTTL = 30 * time.Second

// LiveSnapshot is the latest reading published by a patient screen.
type LiveSnapshot struct {
	PatientID string    `json:"patientId"`
	BPM       int       `json:"bpm"`
	Status    string    `json:"status"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRedisClient creates a client for cfg and checks it answers PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// LiveCache reads and writes live snapshots.
type LiveCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewLiveCache wraps client. A non-positive ttl falls back to DefaultTTL.
func NewLiveCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *LiveCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LiveCache{client: client, ttl: ttl, logger: logger}
}

func liveKey(patientID string) string {
	return fmt.Sprintf("smartpulse:patient:%s:live", patientID)
}

// Put stores a snapshot and resets its TTL.
func (c *LiveCache) Put(ctx context.Context, snap LiveSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal live snapshot: %w", err)
	}
	if err := c.client.Set(ctx, liveKey(snap.PatientID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set live snapshot: %w", err)
	}
	return nil
}

// GetMany returns the cached snapshots among patientIDs, keyed by patient.
// Patients without a snapshot are absent from the map.
func (c *LiveCache) GetMany(ctx context.Context, patientIDs []string) (map[string]LiveSnapshot, error) {
	out := make(map[string]LiveSnapshot, len(patientIDs))
	if len(patientIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(patientIDs))
	for i, id := range patientIDs {
		keys[i] = liveKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get live snapshots: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var snap LiveSnapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			c.logger.Warn("Skipping unreadable live snapshot",
				zap.String("patient_id", patientIDs[i]),
				zap.Error(err),
			)
			continue
		}
		out[patientIDs[i]] = snap
	}
	return out, nil
}

// Delete removes a patient's snapshot.
func (c *LiveCache) Delete(ctx context.Context, patientID string) error {
	if err := c.client.Del(ctx, liveKey(patientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete live snapshot: %w", err)
	}
	return nil
}
