package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

func keyTurnQueue(roomId string) string {
	return fmt.Sprintf("room:%s:queue", roomId)
}

func keyTrackQueue(roomId, userId string) string {
	return fmt.Sprintf("%s:%s", keyTurnQueue(roomId), userId)
}

// EnqueueTurn appends a user to the tail of the room's turn queue. The
// queue itself never re-enqueues; round-robin re-insertion after a served
// turn is the orchestrator's job.
func (s *RedisStore) EnqueueTurn(ctx context.Context, roomId, userId string) error {
	if err := s.client.RPush(ctx, keyTurnQueue(roomId), userId).Err(); err != nil {
		return fmt.Errorf("enqueue turn %q/%q: %w", roomId, userId, err)
	}
	return nil
}

// DequeueTurn removes and returns the head of the turn queue. The second
// return is false when the queue is empty.
func (s *RedisStore) DequeueTurn(ctx context.Context, roomId string) (string, bool, error) {
	userId, err := s.client.LPop(ctx, keyTurnQueue(roomId)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue turn %q: %w", roomId, err)
	}
	return userId, true, nil
}

// RemoveTurn deletes every occurrence of a user from the turn queue, so
// a departed user cannot block the rotation.
func (s *RedisStore) RemoveTurn(ctx context.Context, roomId, userId string) error {
	if err := s.client.LRem(ctx, keyTurnQueue(roomId), 0, userId).Err(); err != nil {
		return fmt.Errorf("remove turn %q/%q: %w", roomId, userId, err)
	}
	return nil
}

func (s *RedisStore) ListTurns(ctx context.Context, roomId string) ([]string, error) {
	users, err := s.client.LRange(ctx, keyTurnQueue(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list turns %q: %w", roomId, err)
	}
	return users, nil
}

// PushTrack places a track at the head of the user's queue; PopTrack
// takes from the head too, so the most recently queued track plays
// first.
func (s *RedisStore) PushTrack(ctx context.Context, roomId, userId, trackId string) error {
	if err := s.client.LPush(ctx, keyTrackQueue(roomId, userId), trackId).Err(); err != nil {
		return fmt.Errorf("push track %q/%q: %w", roomId, userId, err)
	}
	return nil
}

func (s *RedisStore) PopTrack(ctx context.Context, roomId, userId string) (string, bool, error) {
	trackId, err := s.client.LPop(ctx, keyTrackQueue(roomId, userId)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pop track %q/%q: %w", roomId, userId, err)
	}
	return trackId, true, nil
}
