package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/cadence/internal/config"
	"github.com/kode4food/cadence/pkg/api"
	"github.com/kode4food/cadence/pkg/log"
)

// RedisProvider serves topic definitions stored as JSON values in a Redis
// hash keyed by topic name
type RedisProvider struct {
	StaticProvider
	client *redis.Client
	key    string
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider creates a provider reading the <prefix>:topics hash
func NewRedisProvider(cfg config.RedisConfig) *RedisProvider {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = config.DefaultRedisPrefix
	}
	return &RedisProvider{
		StaticProvider: StaticProvider{
			topics: map[api.TopicName]*api.TopicDef{},
		},
		client: client,
		key:    prefix + ":topics",
	}
}

// Init loads every topic in the hash. Entries that fail to decode or
// validate are logged and skipped
func (p *RedisProvider) Init(ctx context.Context) error {
	entries, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return fmt.Errorf("load topics from %s: %w", p.key, err)
	}

	m := &api.TopicsManifest{
		Topics: make(map[api.TopicName]*api.TopicDef, len(entries)),
	}
	for name, data := range entries {
		var def api.TopicDef
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			slog.Warn("Invalid topic definition in Redis",
				log.Topic(name),
				log.Error(err))
			continue
		}
		m.Topics[api.TopicName(name)] = &def
	}
	for _, err := range m.Normalize() {
		slog.Warn("Invalid topic definition dropped", log.Error(err))
	}
	p.replace("redis", m.Topics)
	return nil
}

// Put stores a topic definition in the hash. It becomes visible after
// the next Init
func (p *RedisProvider) Put(
	ctx context.Context, name api.TopicName, def *api.TopicDef,
) error {
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return p.client.HSet(ctx, p.key, string(name), data).Err()
}

// Close releases the Redis connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
