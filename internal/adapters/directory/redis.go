// Package directory mirrors live rooms into redis for external discovery.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	roomsKey   = "rooms"
	roomPrefix = "room:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis keeps one hash per room plus the set of room ids. Entries expire
// after TTL unless republished.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect dials redis and checks the connection.
func Connect(ctx context.Context, cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("module", "directory").Str("addr", cfg.Addr).Msg("redis connected")
	return New(client, cfg.TTL), nil
}

func New(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func roomKey(id domain.RoomID) string { return roomPrefix + string(id) }

func (d *Redis) Publish(ctx context.Context, info domain.RoomInfo) error {
	key := roomKey(info.ID)
	_, err := d.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]any{
			"id":          string(info.ID),
			"broadcaster": string(info.Broadcaster),
			"viewers":     info.Viewers,
			"updated_at":  time.Now().Unix(),
		})
		p.Expire(ctx, key, d.ttl)
		p.SAdd(ctx, roomsKey, string(info.ID))
		p.Expire(ctx, roomsKey, d.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", info.ID, err)
	}
	return nil
}

func (d *Redis) Withdraw(ctx context.Context, id domain.RoomID) error {
	_, err := d.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, roomKey(id))
		p.SRem(ctx, roomsKey, string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("withdraw %s: %w", id, err)
	}
	return nil
}

func (d *Redis) Close() error {
	return d.client.Close()
}
