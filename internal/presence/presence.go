package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Tracker mirrors which users hold a live connection on this process so
// other marketplace services can show online badges.
type Tracker interface {
	UserOnline(userID string)
	UserOffline(userID string)
	Refresh(userIDs []string)
	Close() error
}

// NewTracker returns a redis-backed tracker, or a noop one when no URL is set.
func NewTracker(redisURL string, ttl time.Duration, log *zap.Logger) (Tracker, error) {
	if redisURL == "" {
		log.Info("presence mirror disabled", zap.String("reason", "empty redis url"))
		return Noop{}, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("presence: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("presence: ping: %w", err)
	}
	return NewRedisTracker(client, ttl, log), nil
}

// RedisTracker stores one key per online user with a TTL refreshed by the
// liveness monitor, so a crashed process stops advertising its users.
type RedisTracker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger
}

// NewRedisTracker wraps an existing client.
func NewRedisTracker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl, timeout: 2 * time.Second, log: log}
}

// Key returns the presence key of a user.
func Key(userID string) string { return "chat:presence:" + userID }

func (t *RedisTracker) UserOnline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.client.Set(ctx, Key(userID), time.Now().UTC().Format(time.RFC3339), t.ttl).Err(); err != nil {
		t.log.Warn("presence online failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (t *RedisTracker) UserOffline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.client.Del(ctx, Key(userID)).Err(); err != nil {
		t.log.Warn("presence offline failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (t *RedisTracker) Refresh(userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	pipe := t.client.Pipeline()
	for _, id := range userIDs {
		pipe.Expire(ctx, Key(id), t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.log.Warn("presence refresh failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}

// Noop discards presence updates.
type Noop struct{}

func (Noop) UserOnline(string)  {}
func (Noop) UserOffline(string) {}
func (Noop) Refresh([]string)   {}
func (Noop) Close() error       { return nil }
