package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// eventBlockTimeout bounds a single blocking stream read so the
	// subscription can notice cancellation between polls.
	eventBlockTimeout = 250 * time.Millisecond
	// eventBatchSize bounds how many entries one poll may return.
	eventBatchSize = 5

	// eventSchemaVersion is written into every entry so future variants
	// can be added without breaking old readers.
	eventSchemaVersion = "1"
)

type EventType string

const (
	EventChat             EventType = "chat"
	EventPresencesChanged EventType = "presences_changed"
	EventQueueChanged     EventType = "queue_changed"
	EventUserQueueChanged EventType = "user_queue_changed"
	EventDeviceChanged    EventType = "device_changed"
)

// Event is one entry in a room's append-only log. Id is assigned by the
// store on append and is monotonically increasing within a room.
type Event struct {
	Id   string
	Type EventType

	// Chat fields.
	From string
	Text string

	// UserId carries the subject of user_queue_changed and
	// device_changed events.
	UserId string
}

func NewChatEvent(from, text string) Event {
	return Event{Type: EventChat, From: from, Text: text}
}

func NewPresencesChangedEvent() Event {
	return Event{Type: EventPresencesChanged}
}

func NewQueueChangedEvent() Event {
	return Event{Type: EventQueueChanged}
}

func NewUserQueueChangedEvent(userId string) Event {
	return Event{Type: EventUserQueueChanged, UserId: userId}
}

func NewDeviceChangedEvent(userId string) Event {
	return Event{Type: EventDeviceChanged, UserId: userId}
}

func keyEvents(roomId string) string {
	return fmt.Sprintf("room:%s:messages", roomId)
}

// eventValues flattens an event into the discriminator-plus-fields shape
// stored in the stream.
func eventValues(event Event) map[string]interface{} {
	values := map[string]interface{}{
		"ver":  eventSchemaVersion,
		"type": string(event.Type),
	}

	switch event.Type {
	case EventChat:
		values["from"] = event.From
		values["text"] = event.Text
	case EventUserQueueChanged, EventDeviceChanged:
		values["user_id"] = event.UserId
	}

	return values
}

func eventFromValues(id string, values map[string]interface{}) (Event, error) {
	field := func(name string) (string, error) {
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("event %s missing field %q", id, name)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("event %s field %q has wrong type", id, name)
		}
		return s, nil
	}

	typ, err := field("type")
	if err != nil {
		return Event{}, err
	}

	event := Event{
		Id:   id,
		Type: EventType(typ),
	}

	switch event.Type {
	case EventChat:
		if event.From, err = field("from"); err != nil {
			return Event{}, err
		}
		if event.Text, err = field("text"); err != nil {
			return Event{}, err
		}
	case EventPresencesChanged, EventQueueChanged:
	case EventUserQueueChanged, EventDeviceChanged:
		if event.UserId, err = field("user_id"); err != nil {
			return Event{}, err
		}
	default:
		return Event{}, fmt.Errorf("event %s has unknown type %q", id, typ)
	}

	return event, nil
}

// AppendEvent appends an entry to the room's log and returns the id the
// store assigned. Any process may append, whether or not it owns the
// room.
func (s *RedisStore) AppendEvent(ctx context.Context, roomId string, event Event) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: keyEvents(roomId),
		ID:     "*",
		Values: eventValues(event),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append event %q: %w", roomId, err)
	}
	return id, nil
}

// SubscribeEvents streams new log entries from the moment of
// subscription onward; prior entries are never replayed. Every call owns
// an independent cursor over the same log, so subscribers fan out rather
// than share a queue. The stream closes when ctx is cancelled or the
// underlying read fails.
func (s *RedisStore) SubscribeEvents(ctx context.Context, roomId string) <-chan Event {
	events := make(chan Event, eventBatchSize)
	key := keyEvents(roomId)

	// Pin the cursor to the newest entry before returning, so the
	// subscription point is fixed when the caller gets the channel.
	// Polling with a concrete id instead of "$" means entries appended
	// between reads are never skipped.
	cursor := "0"
	last, err := s.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		if ctx.Err() == nil {
			s.log.WithField("room_id", roomId).WithError(err).Error("event subscription init failed")
		}
		close(events)
		return events
	}
	if len(last) > 0 {
		cursor = last[0].ID
	}

	go func() {
		defer close(events)

		for {
			if ctx.Err() != nil {
				return
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, cursor},
				Count:   eventBatchSize,
				Block:   eventBlockTimeout,
			}).Result()
			if err == redis.Nil {
				// No new entries within the block window.
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					s.log.WithField("room_id", roomId).WithError(err).Error("event subscription read failed")
				}
				return
			}

			for _, stream := range streams {
				if stream.Stream != key {
					continue
				}
				for _, msg := range stream.Messages {
					// Entries arrive in id order, so the last id of
					// the batch is the highest observed.
					cursor = msg.ID

					event, err := eventFromValues(msg.ID, msg.Values)
					if err != nil {
						s.log.WithField("room_id", roomId).WithError(err).Warn("skipping malformed event")
						continue
					}

					select {
					case events <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return events
}
