package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// RedisManager persists state in Redis, for harvesters launched from
// schedulers without a stable local disk. The checkpoint keeps the same
// tab-separated four-field serialization as the file backend; keys are
// namespaced per endpoint so one Redis can back many targets.
type RedisManager struct {
	client *goredis.Client
	target string
}

// NewRedisManager creates a Redis-backed manager.
// url format: redis://[:password@]host:port[/db]. target namespaces the
// keys, typically the repository base URL.
func NewRedisManager(url, target string) (*RedisManager, error) {
	if url == "" {
		return nil, errors.New("state: redis manager requires a URL")
	}
	if target == "" {
		return nil, errors.New("state: redis manager requires a target")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("state: invalid redis URL: %w", err)
	}
	return &RedisManager{client: goredis.NewClient(opts), target: target}, nil
}

func (m *RedisManager) stateKey() string { return "gleaner:state:" + m.target }
func (m *RedisManager) dateKey() string  { return "gleaner:date:" + m.target }

// LoadState implements Manager.
func (m *RedisManager) LoadState(ctx context.Context) ([]string, error) {
	val, err := m.client.Get(ctx, m.stateKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: redis get: %w", err)
	}
	return strings.Split(val, "\t"), nil
}

// SaveState implements Manager. A single SET is atomic on the server.
func (m *RedisManager) SaveState(ctx context.Context, set, token, start, end string) error {
	line := strings.Join([]string{set, token, start, end}, "\t")
	if err := m.client.Set(ctx, m.stateKey(), line, 0).Err(); err != nil {
		return fmt.Errorf("state: redis set: %w", err)
	}
	return nil
}

// ClearState implements Manager.
func (m *RedisManager) ClearState(ctx context.Context) error {
	if err := m.client.Del(ctx, m.stateKey()).Err(); err != nil {
		return fmt.Errorf("state: redis del: %w", err)
	}
	return nil
}

// LoadDate implements Manager.
func (m *RedisManager) LoadDate(ctx context.Context) (string, error) {
	val, err := m.client.Get(ctx, m.dateKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("state: redis get: %w", err)
	}
	return val, nil
}

// SaveDate implements Manager.
func (m *RedisManager) SaveDate(ctx context.Context, date string) error {
	if err := m.client.Set(ctx, m.dateKey(), date, 0).Err(); err != nil {
		return fmt.Errorf("state: redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (m *RedisManager) Close() error { return m.client.Close() }

// Verify RedisManager implements Manager.
var _ Manager = (*RedisManager)(nil)
