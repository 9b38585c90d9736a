package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateRoom(ctx context.Context, room Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}
func (m *MockRepository) RoomExists(ctx context.Context, roomId string) (bool, error) {
	args := m.Called(ctx, roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListRooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) OfferRoom(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
func (m *MockRepository) ClaimRoom(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockRepository) RenewClaim(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
func (m *MockRepository) JoinPresence(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) RenewPresence(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) LeavePresence(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) ScanPresence(ctx context.Context, roomId string) ([]string, error) {
	args := m.Called(ctx, roomId)
	if users, ok := args.Get(0).([]string); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) ClearPresenceSet(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
func (m *MockRepository) AddPresenceMember(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) RemovePresenceMember(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) ListPresences(ctx context.Context, roomId string) ([]string, error) {
	args := m.Called(ctx, roomId)
	if users, ok := args.Get(0).([]string); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) SubscribePresence(ctx context.Context, roomId string) (<-chan PresenceEvent, error) {
	args := m.Called(ctx, roomId)
	if ch, ok := args.Get(0).(chan PresenceEvent); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) AppendEvent(ctx context.Context, roomId string, event Event) (string, error) {
	args := m.Called(ctx, roomId, event)
	return args.String(0), args.Error(1)
}
func (m *MockRepository) SubscribeEvents(ctx context.Context, roomId string) <-chan Event {
	args := m.Called(ctx, roomId)
	return args.Get(0).(chan Event)
}
func (m *MockRepository) EnqueueTurn(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) DequeueTurn(ctx context.Context, roomId string) (string, bool, error) {
	args := m.Called(ctx, roomId)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *MockRepository) RemoveTurn(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) ListTurns(ctx context.Context, roomId string) ([]string, error) {
	args := m.Called(ctx, roomId)
	if users, ok := args.Get(0).([]string); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) PushTrack(ctx context.Context, roomId, userId, trackId string) error {
	args := m.Called(ctx, roomId, userId, trackId)
	return args.Error(0)
}
func (m *MockRepository) PopTrack(ctx context.Context, roomId, userId string) (string, bool, error) {
	args := m.Called(ctx, roomId, userId)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *MockRepository) SetNowPlaying(ctx context.Context, roomId string, playing NowPlaying) error {
	args := m.Called(ctx, roomId, playing)
	return args.Error(0)
}
func (m *MockRepository) GetNowPlaying(ctx context.Context, roomId string) (NowPlaying, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(NowPlaying), args.Error(1)
}
func (m *MockRepository) SetAuth(ctx context.Context, userId string, tokens TokenPair) error {
	args := m.Called(ctx, userId, tokens)
	return args.Error(0)
}
func (m *MockRepository) GetAuth(ctx context.Context, userId string) (TokenPair, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(TokenPair), args.Error(1)
}
func (m *MockRepository) SetDevice(ctx context.Context, userId, deviceId string) error {
	args := m.Called(ctx, userId, deviceId)
	return args.Error(0)
}
func (m *MockRepository) GetDevice(ctx context.Context, userId string) (string, error) {
	args := m.Called(ctx, userId)
	return args.String(0), args.Error(1)
}
