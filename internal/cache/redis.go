// Package cache mirrors the latest position of every tracker into Redis so
// processes outside the ingestion server can answer "where is it now".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/log"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "fleettrack:position:"
	pingTimeout = 5 * time.Second
)

var _ repository.PositionCache = (*PositionMirror)(nil)

// PositionMirror is a PositionCache backed by Redis. Entries expire after the
// configured TTL so devices that go quiet eventually disappear.
type PositionMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger log.Logger
}

// NewPositionMirror parses redisURL, connects and pings the server.
func NewPositionMirror(ctx context.Context, redisURL string, ttl time.Duration, logger log.Logger) (*PositionMirror, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}

	logger.Info("Redis position mirror connected", "addr", opt.Addr, "ttl", ttl)
	return &PositionMirror{client: client, ttl: ttl, logger: logger}, nil
}

func positionKey(deviceID string) string {
	return keyPrefix + deviceID
}

func (m *PositionMirror) Put(ctx context.Context, report *model.PositionReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, positionKey(report.DeviceID), data, m.ttl).Err()
}

// Latest returns nil, nil when no position is stored for deviceID.
func (m *PositionMirror) Latest(ctx context.Context, deviceID string) (*model.PositionReport, error) {
	data, err := m.client.Get(ctx, positionKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var report model.PositionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode cached position for %s: %w", deviceID, err)
	}
	return &report, nil
}

func (m *PositionMirror) Delete(ctx context.Context, deviceID string) error {
	return m.client.Del(ctx, positionKey(deviceID)).Err()
}

// Close closes the Redis connection.
func (m *PositionMirror) Close() error {
	return m.client.Close()
}
