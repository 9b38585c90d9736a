package store

import "context"

// Repository is the full Store surface the coordination engine depends
// on. RedisStore is the production implementation; MockRepository backs
// the engine tests.
type Repository interface {
	// Room registry.
	CreateRoom(ctx context.Context, room Room) error
	RoomExists(ctx context.Context, roomId string) (bool, error)
	GetRoom(ctx context.Context, roomId string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)

	// Claims.
	OfferRoom(ctx context.Context, roomId string) error
	ClaimRoom(ctx context.Context) (string, error)
	RenewClaim(ctx context.Context, roomId string) error

	// Presence leases and the materialized presence set.
	JoinPresence(ctx context.Context, roomId, userId string) error
	RenewPresence(ctx context.Context, roomId, userId string) error
	LeavePresence(ctx context.Context, roomId, userId string) error
	ScanPresence(ctx context.Context, roomId string) ([]string, error)
	ClearPresenceSet(ctx context.Context, roomId string) error
	AddPresenceMember(ctx context.Context, roomId, userId string) error
	RemovePresenceMember(ctx context.Context, roomId, userId string) error
	ListPresences(ctx context.Context, roomId string) ([]string, error)
	SubscribePresence(ctx context.Context, roomId string) (<-chan PresenceEvent, error)

	// Event log.
	AppendEvent(ctx context.Context, roomId string, event Event) (string, error)
	SubscribeEvents(ctx context.Context, roomId string) <-chan Event

	// Turn and track queues.
	EnqueueTurn(ctx context.Context, roomId, userId string) error
	DequeueTurn(ctx context.Context, roomId string) (string, bool, error)
	RemoveTurn(ctx context.Context, roomId, userId string) error
	ListTurns(ctx context.Context, roomId string) ([]string, error)
	PushTrack(ctx context.Context, roomId, userId, trackId string) error
	PopTrack(ctx context.Context, roomId, userId string) (string, bool, error)

	// Playback state.
	SetNowPlaying(ctx context.Context, roomId string, playing NowPlaying) error
	GetNowPlaying(ctx context.Context, roomId string) (NowPlaying, error)

	// Provider credentials and device bindings.
	SetAuth(ctx context.Context, userId string, tokens TokenPair) error
	GetAuth(ctx context.Context, userId string) (TokenPair, error)
	SetDevice(ctx context.Context, userId, deviceId string) error
	GetDevice(ctx context.Context, userId string) (string, error)
}
