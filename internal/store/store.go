package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrNotClaimed is returned when a claim transaction loses to a
	// competing worker.
	ErrNotClaimed = errors.New("store: room not claimed")
	// ErrNoOffer is returned when the offer queue is empty for the
	// duration of the bounded wait.
	ErrNoOffer = errors.New("store: no room offered")
)

// RedisStore implements Repository on top of a shared Redis client. The
// client pools connections internally, so concurrent callers never
// serialize behind a single handle.
type RedisStore struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisStore(addr, password string, db int, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	// Presence tracking relies on keyspace notifications for SET, DEL
	// and expiry events.
	if err := client.ConfigSet(ctx, "notify-keyspace-events", "Kg$x").Err(); err != nil {
		return nil, fmt.Errorf("enable keyspace notifications: %w", err)
	}

	return &RedisStore{
		client: client,
		log:    logger,
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
