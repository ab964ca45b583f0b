// Package events publishes audit progress and status notifications to
// Redis pub/sub so dashboards and other services can follow runs live.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storelens/storelens/internal/core"
)

// DefaultChannel carries every event when no channel is configured.
const DefaultChannel = "storelens:audits"

const (
	TypeProgress = "progress"
	TypeStatus   = "status"
)

// Config selects the Redis instance and channel.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Event is the JSON payload published for a run.
type Event struct {
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	Percent    int            `json:"percent,omitempty"`
	Message    string         `json:"message,omitempty"`
	Status     core.RunStatus `json:"status,omitempty"`
	TotalScore *int           `json:"total_score,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// Publisher is the part of a Redis client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher reports progress and run status to a Redis channel.
type RedisPublisher struct {
	Client  Publisher
	Channel string
	Clock   func() time.Time

	closer func() error
	pinger func(ctx context.Context) error
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisPublisher{
		Client:  client,
		Channel: cfg.Channel,
		closer:  client.Close,
		pinger:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, nil
}

// Ping checks the connection opened by Connect.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if p == nil || p.pinger == nil {
		return errors.New("redis publisher not connected")
	}
	return p.pinger(ctx)
}

// ReportProgress publishes a progress milestone.
func (p *RedisPublisher) ReportProgress(ctx context.Context, runID string, percent int, message string) error {
	return p.publish(ctx, Event{
		Type:    TypeProgress,
		RunID:   runID,
		Percent: percent,
		Message: message,
	})
}

// NotifyStatus publishes a run's terminal or intermediate status.
func (p *RedisPublisher) NotifyStatus(ctx context.Context, run core.AuditRun) error {
	return p.publish(ctx, Event{
		Type:       TypeStatus,
		RunID:      run.ID,
		Percent:    run.Progress,
		Status:     run.Status,
		TotalScore: run.TotalScore,
		Error:      run.Error,
	})
}

// Close releases the Redis connection when Connect opened it.
func (p *RedisPublisher) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer()
}

func (p *RedisPublisher) publish(ctx context.Context, event Event) error {
	if p == nil || p.Client == nil {
		return errors.New("redis publisher not configured")
	}
	event.Timestamp = p.now().UnixMilli()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if err := p.Client.Publish(ctx, p.channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *RedisPublisher) channel() string {
	if ch := strings.TrimSpace(p.Channel); ch != "" {
		return ch
	}
	return DefaultChannel
}

func (p *RedisPublisher) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}
