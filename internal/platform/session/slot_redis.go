package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSlot keeps the credential under one key and announces every write or
// clear on "<key>:events" with the writer's origin as payload.
type RedisSlot struct {
	client *redis.Client
	key    string
	origin string
	logger zerolog.Logger
}

func NewRedisSlot(client *redis.Client, key string, logger zerolog.Logger) *RedisSlot {
	return &RedisSlot{client: client, key: key, origin: uuid.New().String(), logger: logger}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisSlot) Origin() string { return s.origin }

func (s *RedisSlot) channel() string { return s.key + ":events" }

func (s *RedisSlot) Load(ctx context.Context) (string, bool, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get credential: %w", err)
	}
	return token, token != "", nil
}

func (s *RedisSlot) Store(ctx context.Context, token string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key, token, 0)
		p.Publish(ctx, s.channel(), s.origin)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store credential: %w", err)
	}
	return nil
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	n, err := s.client.Del(ctx, s.key).Result()
	if err != nil {
		return fmt.Errorf("redis clear credential: %w", err)
	}
	if n == 0 {
		return nil
	}
	// The key is gone, so the clear has happened; only the notice is lost.
	if err := s.client.Publish(ctx, s.channel(), s.origin).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("credential cleared but change not published")
	}
	return nil
}

func (s *RedisSlot) Watch(ctx context.Context) (<-chan Change, error) {
	sub := s.client.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Change, changeBuffer)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					s.logger.Warn().Str("channel", s.channel()).Msg("credential subscription closed")
					return
				}
				if msg.Payload == s.origin {
					continue
				}
				notify(out, Change{Origin: msg.Payload, At: time.Now()})
			}
		}
	}()
	return out, nil
}
