package store

import (
	"context"
	"fmt"
	"strconv"
)

// NowPlaying is the per-room playback record, overwritten whenever a new
// track starts. Rejoining sessions read it to compute their catch-up
// offset.
type NowPlaying struct {
	TrackId string
	// StartTimeMs is the wall-clock start in unix milliseconds.
	StartTimeMs int64
	LengthMs    int64
}

func keyPlaying(roomId string) string {
	return fmt.Sprintf("room:%s:playing", roomId)
}

func (s *RedisStore) SetNowPlaying(ctx context.Context, roomId string, playing NowPlaying) error {
	err := s.client.HSet(ctx, keyPlaying(roomId),
		"track_id", playing.TrackId,
		"start_time", strconv.FormatInt(playing.StartTimeMs, 10),
		"length", strconv.FormatInt(playing.LengthMs, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("set now playing %q: %w", roomId, err)
	}
	return nil
}

func (s *RedisStore) GetNowPlaying(ctx context.Context, roomId string) (NowPlaying, error) {
	data, err := s.client.HGetAll(ctx, keyPlaying(roomId)).Result()
	if err != nil {
		return NowPlaying{}, fmt.Errorf("get now playing %q: %w", roomId, err)
	}
	if len(data) == 0 {
		return NowPlaying{}, ErrNotFound
	}

	startTime, err := strconv.ParseInt(data["start_time"], 10, 64)
	if err != nil {
		return NowPlaying{}, fmt.Errorf("parse now playing start time %q: %w", roomId, err)
	}
	length, err := strconv.ParseInt(data["length"], 10, 64)
	if err != nil {
		return NowPlaying{}, fmt.Errorf("parse now playing length %q: %w", roomId, err)
	}

	return NowPlaying{
		TrackId:     data["track_id"],
		StartTimeMs: startTime,
		LengthMs:    length,
	}, nil
}
