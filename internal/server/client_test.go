package server

import (
	"context"
	"errors"
	"testing"

	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/npezzotti/go-tuneroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestClient(t *testing.T, db store.Repository) *Client {
	return &Client{
		sessionId: "test-session",
		roomId:    "test-room",
		userId:    "alice",
		db:        db,
		send:      make(chan *ServerMessage, 4),
		log:       testutil.TestLogger(t).WithField("session_id", "test-session"),
	}
}

func TestHandleMessage(t *testing.T) {
	t.Run("chat is appended to the event log", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("AppendEvent", mock.Anything, "test-room", store.NewChatEvent("alice", "hello")).Return("1-0", nil)

		c := newTestClient(t, db)
		err := c.handleMessage(context.Background(), &ClientMessage{Chat: &ChatRequest{Text: "hello"}})

		assert.NoError(t, err)
		db.AssertExpectations(t)
	})

	t.Run("set_device binds the device then notifies", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("SetDevice", mock.Anything, "alice", "dev-a").Return(nil)
		db.On("AppendEvent", mock.Anything, "test-room", store.NewDeviceChangedEvent("alice")).Return("1-0", nil)

		c := newTestClient(t, db)
		err := c.handleMessage(context.Background(), &ClientMessage{SetDevice: &SetDeviceRequest{DeviceId: "dev-a"}})

		assert.NoError(t, err)
		db.AssertExpectations(t)
	})

	t.Run("queue_track pushes without notifying", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("PushTrack", mock.Anything, "test-room", "alice", "spotify:track:abc").Return(nil)

		c := newTestClient(t, db)
		err := c.handleMessage(context.Background(), &ClientMessage{QueueTrack: &QueueTrackRequest{TrackId: "spotify:track:abc"}})

		assert.NoError(t, err)
		db.AssertExpectations(t)
		db.AssertNotCalled(t, "AppendEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("join_queue enqueues the turn and notifies", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("EnqueueTurn", mock.Anything, "test-room", "alice").Return(nil)
		db.On("AppendEvent", mock.Anything, "test-room", store.NewQueueChangedEvent()).Return("1-0", nil)

		c := newTestClient(t, db)
		err := c.handleMessage(context.Background(), &ClientMessage{JoinQueue: &JoinQueueRequest{}})

		assert.NoError(t, err)
		db.AssertExpectations(t)
	})

	t.Run("ping answers locally", func(t *testing.T) {
		db := &store.MockRepository{}
		c := newTestClient(t, db)

		err := c.handleMessage(context.Background(), &ClientMessage{Ping: &PingRequest{Data: "abc"}})

		assert.NoError(t, err)
		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Pong)
			assert.Equal(t, "abc", msg.Pong.Data)
		default:
			t.Error("expected a pong to be queued")
		}
		db.AssertNotCalled(t, "AppendEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty message is an error", func(t *testing.T) {
		c := newTestClient(t, &store.MockRepository{})
		err := c.handleMessage(context.Background(), &ClientMessage{})
		assert.Error(t, err)
	})
}

func TestAdmit(t *testing.T) {
	t.Run("existing room admits silently", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("RoomExists", mock.Anything, "test-room").Return(true, nil)

		c := newTestClient(t, db)
		assert.True(t, c.admit(context.Background()))
		assert.Len(t, c.send, 0)
	})

	t.Run("missing room queues the not-found notice", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("RoomExists", mock.Anything, "test-room").Return(false, nil)

		c := newTestClient(t, db)
		assert.False(t, c.admit(context.Background()))

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Chat)
			assert.Equal(t, systemUser, msg.Chat.From)
			assert.Contains(t, msg.Chat.Text, "does not exist")
		default:
			t.Error("expected a system message to be queued")
		}
	})

	t.Run("store failure ends the session without a notice", func(t *testing.T) {
		db := &store.MockRepository{}
		db.On("RoomExists", mock.Anything, "test-room").Return(false, errors.New("connection refused"))

		c := newTestClient(t, db)
		assert.False(t, c.admit(context.Background()))
		assert.Len(t, c.send, 0, "a transport fault must not be reported as not-found")
	})
}

func TestQueueMessage(t *testing.T) {
	c := newTestClient(t, &store.MockRepository{})
	c.send = make(chan *ServerMessage, 1)

	assert.True(t, c.queueMessage(NewPongMessage("a")), "expected queue to accept while buffered")
	assert.False(t, c.queueMessage(NewPongMessage("b")), "expected queue to drop when full")
	assert.Len(t, c.send, 1)
}

func TestSendRoomState(t *testing.T) {
	db := &store.MockRepository{}
	db.On("ListPresences", mock.Anything, "test-room").Return([]string{"alice", "bob"}, nil)
	db.On("ListTurns", mock.Anything, "test-room").Return([]string{"bob"}, nil)

	c := newTestClient(t, db)
	c.sendRoomState(context.Background())

	select {
	case msg := <-c.send:
		assert.NotNil(t, msg.RoomState)
		assert.Equal(t, []string{"alice", "bob"}, msg.RoomState.Presences)
		assert.Equal(t, []string{"bob"}, msg.RoomState.Queue)
	default:
		t.Error("expected a room state snapshot to be queued")
	}
	db.AssertExpectations(t)
}

func TestRelayEventsFiltersUserQueueChanges(t *testing.T) {
	events := make(chan store.Event, 2)
	db := &store.MockRepository{}
	db.On("SubscribeEvents", mock.Anything, "test-room").Return(events)

	c := newTestClient(t, db)
	ctx, cancel := context.WithCancel(context.Background())

	events <- store.NewUserQueueChangedEvent("bob")
	events <- store.NewUserQueueChangedEvent("alice")
	close(events)
	c.relayEvents(ctx)
	cancel()

	select {
	case msg := <-c.send:
		assert.NotNil(t, msg.UserQueueChanged, "expected own user queue change to be relayed")
	default:
		t.Error("expected one message to be queued")
	}
	assert.Len(t, c.send, 0, "expected other users' queue changes to be dropped")
}
