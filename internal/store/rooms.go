package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// claimTTL is the lifetime of an unrenewed room claim. A claim
	// renewed every claimRenewInterval survives one missed renewal.
	claimTTL = 5 * time.Second
	// offerWaitTimeout bounds a single blocking pop on the offer queue.
	offerWaitTimeout = 5 * time.Second

	maxRoomIdLen    = 32
	maxRoomTitleLen = 64
)

var roomIdPattern = regexp.MustCompile(`^[a-zA-Z\d-]*$`)

// reservedRoomIds are ids used by routes and may not name a room.
var reservedRoomIds = map[string]struct{}{
	"new": {},
}

// Room is the immutable registry record for a listening room.
type Room struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// ValidationErrors collects every violated rule for a single request.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return strings.Join(v, " ")
}

// Validate checks all fields and reports every violation rather than
// stopping at the first.
func (r Room) Validate() ValidationErrors {
	var errs ValidationErrors

	if len(r.Id) == 0 {
		errs = append(errs, "Room id must not be empty.")
	}
	if len(r.Id) >= maxRoomIdLen {
		errs = append(errs, fmt.Sprintf("Room id must be less than %d characters long.", maxRoomIdLen))
	}
	if _, ok := reservedRoomIds[r.Id]; ok {
		errs = append(errs, fmt.Sprintf("Room id can't be %s.", r.Id))
	}
	if !roomIdPattern.MatchString(r.Id) {
		errs = append(errs, "Room id contains forbidden character.")
	}
	if len(r.Title) == 0 {
		errs = append(errs, "Room title can't be empty.")
	}
	if len(r.Title) >= maxRoomTitleLen {
		errs = append(errs, fmt.Sprintf("Room title must be less than %d characters long.", maxRoomTitleLen))
	}

	return errs
}

func keyRoom(roomId string) string {
	return fmt.Sprintf("room:%s", roomId)
}

func keyRooms() string {
	return "rooms"
}

func keyRoomsFree() string {
	return "rooms_free"
}

func keyRoomClaimed(roomId string) string {
	return fmt.Sprintf("%s:claimed", keyRoom(roomId))
}

// CreateRoom validates the room and writes it exactly once. The write is
// an optimistic transaction watching the room key, so exactly one of any
// number of concurrent creators succeeds.
func (s *RedisStore) CreateRoom(ctx context.Context, room Room) error {
	if errs := room.Validate(); len(errs) > 0 {
		return errs
	}

	key := keyRoom(room.Id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists != 0 {
			return ValidationErrors{fmt.Sprintf("Room id %s is already taken.", room.Id)}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "id", room.Id, "title", room.Title, "owner", room.Owner)
			return nil
		})
		return err
	}, key)

	if err == redis.TxFailedErr {
		// A concurrent creator committed between observe and exec.
		return ValidationErrors{fmt.Sprintf("Room id %s is already taken.", room.Id)}
	}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	if err != nil {
		return fmt.Errorf("create room %q: %w", room.Id, err)
	}

	if err := s.client.SAdd(ctx, keyRooms(), room.Id).Err(); err != nil {
		return fmt.Errorf("index room %q: %w", room.Id, err)
	}

	return nil
}

func (s *RedisStore) RoomExists(ctx context.Context, roomId string) (bool, error) {
	n, err := s.client.Exists(ctx, keyRoom(roomId)).Result()
	if err != nil {
		return false, fmt.Errorf("room exists %q: %w", roomId, err)
	}
	return n != 0, nil
}

func (s *RedisStore) GetRoom(ctx context.Context, roomId string) (Room, error) {
	data, err := s.client.HGetAll(ctx, keyRoom(roomId)).Result()
	if err != nil {
		return Room{}, fmt.Errorf("get room %q: %w", roomId, err)
	}
	if len(data) == 0 {
		return Room{}, ErrNotFound
	}

	return Room{
		Id:    data["id"],
		Title: data["title"],
		Owner: data["owner"],
	}, nil
}

func (s *RedisStore) ListRooms(ctx context.Context) ([]Room, error) {
	ids, err := s.client.SMembers(ctx, keyRooms()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.GetRoom(ctx, id)
		if err == ErrNotFound {
			s.log.WithField("room_id", id).Warn("indexed room missing its record")
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

// OfferRoom marks a room as eligible for claiming. Offers are
// at-least-once; duplicates are harmless because the claim transaction
// admits only one winner while the claim key lives.
func (s *RedisStore) OfferRoom(ctx context.Context, roomId string) error {
	if err := s.client.LPush(ctx, keyRoomsFree(), roomId).Err(); err != nil {
		return fmt.Errorf("offer room %q: %w", roomId, err)
	}
	return nil
}

// ClaimRoom blocks up to offerWaitTimeout for an offered room, then runs
// the claim transaction: observe the claim key, conditionally create it
// with the claim TTL, abort if a competitor touched it in between.
// Returns ErrNoOffer when nothing was offered and ErrNotClaimed when a
// competitor won.
func (s *RedisStore) ClaimRoom(ctx context.Context) (string, error) {
	res, err := s.client.BLPop(ctx, offerWaitTimeout, keyRoomsFree()).Result()
	if err == redis.Nil {
		return "", ErrNoOffer
	}
	if err != nil {
		return "", fmt.Errorf("pop offered room: %w", err)
	}
	roomId := res[1]

	key := keyRoomClaimed(roomId)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists != 0 {
			return ErrNotClaimed
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, "", claimTTL)
			return nil
		})
		return err
	}, key)

	if err == redis.TxFailedErr || err == ErrNotClaimed {
		return "", ErrNotClaimed
	}
	if err != nil {
		return "", fmt.Errorf("claim room %q: %w", roomId, err)
	}

	return roomId, nil
}

// RenewClaim extends the claim lease. The owning orchestrator calls this
// every 3s; a claim not renewed within claimTTL silently expires and the
// room becomes claimable again.
func (s *RedisStore) RenewClaim(ctx context.Context, roomId string) error {
	ok, err := s.client.Expire(ctx, keyRoomClaimed(roomId), claimTTL).Result()
	if err != nil {
		return fmt.Errorf("renew claim %q: %w", roomId, err)
	}
	if !ok {
		return fmt.Errorf("renew claim %q: %w", roomId, ErrNotFound)
	}
	return nil
}
