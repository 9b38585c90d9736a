package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// TokenPair is the provider credential set for one user. The
// coordination engine only reads it to authenticate playback commands;
// the auth flow owns writes.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func keyAuth(userId string) string {
	return fmt.Sprintf("%s:auth", userId)
}

func keyDevice(userId string) string {
	return fmt.Sprintf("%s:device", userId)
}

func (s *RedisStore) SetAuth(ctx context.Context, userId string, tokens TokenPair) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal auth %q: %w", userId, err)
	}
	if err := s.client.Set(ctx, keyAuth(userId), data, 0).Err(); err != nil {
		return fmt.Errorf("set auth %q: %w", userId, err)
	}
	return nil
}

func (s *RedisStore) GetAuth(ctx context.Context, userId string) (TokenPair, error) {
	data, err := s.client.Get(ctx, keyAuth(userId)).Result()
	if err == redis.Nil {
		return TokenPair{}, ErrNotFound
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("get auth %q: %w", userId, err)
	}

	var tokens TokenPair
	if err := json.Unmarshal([]byte(data), &tokens); err != nil {
		return TokenPair{}, fmt.Errorf("unmarshal auth %q: %w", userId, err)
	}
	return tokens, nil
}

// SetDevice records the user's selected playback device, last write
// wins.
func (s *RedisStore) SetDevice(ctx context.Context, userId, deviceId string) error {
	if err := s.client.Set(ctx, keyDevice(userId), deviceId, 0).Err(); err != nil {
		return fmt.Errorf("set device %q: %w", userId, err)
	}
	return nil
}

func (s *RedisStore) GetDevice(ctx context.Context, userId string) (string, error) {
	deviceId, err := s.client.Get(ctx, keyDevice(userId)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get device %q: %w", userId, err)
	}
	return deviceId, nil
}
