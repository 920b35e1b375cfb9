package state

import (
	"context"
	"time"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "whistle:item:"
	defaultRedisChannel = "whistle:updates"
)

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	Channel  string
}

// Update is the message published on the Redis channel
type Update struct {
	Item      string    `json:"item"`
	Value     string    `json:"value"`
	Kind      Kind      `json:"kind"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisPublisher mirrors item states into Redis keys and announces every
// update on a pub/sub channel
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	channel string
}

func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	errFactory := errors.New()

	if cfg.Addr == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	channel := cfg.Channel
	if channel == "" {
		channel = defaultRedisChannel
	}

	return &RedisPublisher{
		client:  client,
		prefix:  prefix,
		channel: channel,
	}, nil
}

// Key returns the Redis key holding an item's state
func (p *RedisPublisher) Key(name string) string {
	return p.prefix + name
}

func (p *RedisPublisher) Publish(ctx context.Context, name string, value Value) error {
	errFactory := errors.New()

	if name == "" {
		return errFactory.New(ErrInvalidItem)
	}

	msg, err := sonic.Marshal(Update{
		Item:      name,
		Value:     value.String(),
		Kind:      value.Kind,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.Key(name), value.String(), 0)
		pipe.Publish(ctx, p.channel, msg)
		return nil
	})
	if err != nil {
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	return nil
}

func (p *RedisPublisher) Close() error {
	if err := p.client.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
