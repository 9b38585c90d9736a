package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// presenceTTL is the lifetime of an unrenewed presence lease. Expiry is
// the sole removal path for crashed connections; no explicit leave
// message is required.
const presenceTTL = 5 * time.Second

type PresenceActivity int

const (
	PresenceJoin PresenceActivity = iota
	PresenceLeave
)

// PresenceEvent is a lease lifecycle transition for one (room, user)
// pair, derived from keyspace notifications.
type PresenceEvent struct {
	UserId   string
	Activity PresenceActivity
}

func keyPresence(roomId, userId string) string {
	return fmt.Sprintf("room:%s:presence:%s", roomId, userId)
}

func keyPresences(roomId string) string {
	return fmt.Sprintf("room:%s:presences", roomId)
}

func keyPresenceChannels(roomId string) string {
	return fmt.Sprintf("__keyspace@*__:%s", keyPresence(roomId, "*"))
}

// presenceUserFromKey extracts the user id from a presence key or
// notification channel name.
func presenceUserFromKey(key string) string {
	parts := strings.Split(key, ":presence:")
	return parts[len(parts)-1]
}

func (s *RedisStore) JoinPresence(ctx context.Context, roomId, userId string) error {
	if err := s.client.Set(ctx, keyPresence(roomId, userId), "", presenceTTL).Err(); err != nil {
		return fmt.Errorf("join presence %q/%q: %w", roomId, userId, err)
	}
	return nil
}

// RenewPresence extends the lease with a full SET so a lease that
// already expired under a stalled renewal is re-created rather than
// silently left absent. The resulting "set" notification re-adds the
// user through the normal join path.
func (s *RedisStore) RenewPresence(ctx context.Context, roomId, userId string) error {
	if err := s.client.Set(ctx, keyPresence(roomId, userId), "", presenceTTL).Err(); err != nil {
		return fmt.Errorf("renew presence %q/%q: %w", roomId, userId, err)
	}
	return nil
}

func (s *RedisStore) LeavePresence(ctx context.Context, roomId, userId string) error {
	if err := s.client.Del(ctx, keyPresence(roomId, userId)).Err(); err != nil {
		return fmt.Errorf("leave presence %q/%q: %w", roomId, userId, err)
	}
	return nil
}

// ScanPresence lists users with a currently live lease by scanning the
// keyspace. Used once at orchestrator start to reconcile sessions that
// connected before this process owned the room; steady-state membership
// comes from SubscribePresence.
func (s *RedisStore) ScanPresence(ctx context.Context, roomId string) ([]string, error) {
	var users []string
	iter := s.client.Scan(ctx, 0, keyPresence(roomId, "*"), 0).Iterator()
	for iter.Next(ctx) {
		users = append(users, presenceUserFromKey(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence %q: %w", roomId, err)
	}
	return users, nil
}

// The presence set is a materialized membership cache maintained by the
// room's orchestrator. It exists for fast listing only; the live leases
// remain the source of truth.

func (s *RedisStore) ClearPresenceSet(ctx context.Context, roomId string) error {
	if err := s.client.Del(ctx, keyPresences(roomId)).Err(); err != nil {
		return fmt.Errorf("clear presence set %q: %w", roomId, err)
	}
	return nil
}

func (s *RedisStore) AddPresenceMember(ctx context.Context, roomId, userId string) error {
	if err := s.client.SAdd(ctx, keyPresences(roomId), userId).Err(); err != nil {
		return fmt.Errorf("add presence member %q/%q: %w", roomId, userId, err)
	}
	return nil
}

func (s *RedisStore) RemovePresenceMember(ctx context.Context, roomId, userId string) error {
	if err := s.client.SRem(ctx, keyPresences(roomId), userId).Err(); err != nil {
		return fmt.Errorf("remove presence member %q/%q: %w", roomId, userId, err)
	}
	return nil
}

func (s *RedisStore) ListPresences(ctx context.Context, roomId string) ([]string, error) {
	users, err := s.client.SMembers(ctx, keyPresences(roomId)).Result()
	if err != nil {
		return nil, fmt.Errorf("list presences %q: %w", roomId, err)
	}
	return users, nil
}

// SubscribePresence streams lease transitions for a room, derived from
// keyspace notifications on the presence keys. The stream closes when
// ctx is cancelled.
func (s *RedisStore) SubscribePresence(ctx context.Context, roomId string) (<-chan PresenceEvent, error) {
	pubsub := s.client.PSubscribe(ctx, keyPresenceChannels(roomId))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe presence %q: %w", roomId, err)
	}

	events := make(chan PresenceEvent, 5)
	msgs := pubsub.Channel()

	go func() {
		defer close(events)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var activity PresenceActivity
				switch msg.Payload {
				case "set":
					activity = PresenceJoin
				case "del", "expired":
					activity = PresenceLeave
				default:
					// Renewals fire "expire" events, which are
					// not membership transitions.
					continue
				}

				event := PresenceEvent{
					UserId:   presenceUserFromKey(msg.Channel),
					Activity: activity,
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
