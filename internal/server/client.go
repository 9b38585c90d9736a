package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-tuneroom/internal/stats"
	"github.com/npezzotti/go-tuneroom/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096

	// presenceRenewInterval leaves one missed renewal of slack before
	// the 5s presence lease expires.
	presenceRenewInterval = 3 * time.Second
)

// Client coordinates one websocket session with a room: it relays the
// room's event log to the connection, keeps the user's presence lease
// alive and applies the user's requests to the store.
type Client struct {
	sessionId string
	roomId    string
	userId    string
	conn      *websocket.Conn
	db        store.Repository
	stats     stats.StatsProvider
	send      chan *ServerMessage
	log       *logrus.Entry
}

func NewClient(conn *websocket.Conn, roomId, userId string, db store.Repository, statsProvider stats.StatsProvider, logger *logrus.Logger) *Client {
	sessionId := uuid.NewString()
	return &Client{
		sessionId: sessionId,
		roomId:    roomId,
		userId:    userId,
		conn:      conn,
		db:        db,
		stats:     statsProvider,
		send:      make(chan *ServerMessage, 256),
		log: logger.WithFields(logrus.Fields{
			"session_id": sessionId,
			"room_id":    roomId,
			"user_id":    userId,
		}),
	}
}

// Run serves the session until the connection or ctx closes.
func (c *Client) Run(ctx context.Context) {
	c.stats.Incr(statSessionsActive)
	defer c.stats.Decr(statSessionsActive)
	defer c.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump()
	}()

	if !c.admit(ctx) {
		close(c.send)
		<-writeDone
		return
	}

	// Every session nominates its room for ownership. Claim workers
	// drop the offer when the room is already owned.
	if err := c.db.OfferRoom(ctx, c.roomId); err != nil {
		c.log.WithError(err).Error("offering room failed")
		close(c.send)
		<-writeDone
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.relayEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		c.keepPresence(ctx)
	}()

	// Unblock the read loop when the surrounding context ends.
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	c.log.Info("session started")
	c.readLoop(ctx)

	cancel()
	wg.Wait()
	close(c.send)
	<-writeDone
	c.log.Info("session ended")
}

// admit verifies the room exists before the session starts. The
// not-found notice is sent only on a definite miss; a store failure is
// logged and the session ends without one.
func (c *Client) admit(ctx context.Context) bool {
	exists, err := c.db.RoomExists(ctx, c.roomId)
	if err != nil {
		c.log.WithError(err).Error("room lookup failed")
		return false
	}
	if !exists {
		c.queueMessage(NewSystemMessage(fmt.Sprintf("Room %s does not exist!", c.roomId)))
		return false
	}

	return true
}

// relayEvents translates the room's event log into session messages.
// Presence and queue changes are re-derived as full snapshots rather
// than forwarded raw.
func (c *Client) relayEvents(ctx context.Context) {
	events := c.db.SubscribeEvents(ctx, c.roomId)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			switch event.Type {
			case store.EventChat:
				c.queueMessage(NewChatMessage(event.Id, event.From, event.Text))
			case store.EventPresencesChanged, store.EventQueueChanged:
				c.sendRoomState(ctx)
			case store.EventUserQueueChanged:
				if event.UserId == c.userId {
					c.queueMessage(NewUserQueueChangedMessage())
				}
			}
		}
	}
}

func (c *Client) sendRoomState(ctx context.Context) {
	presences, err := c.db.ListPresences(ctx, c.roomId)
	if err != nil {
		c.log.WithError(err).Warn("listing presences failed")
		return
	}
	turns, err := c.db.ListTurns(ctx, c.roomId)
	if err != nil {
		c.log.WithError(err).Warn("listing turn queue failed")
		return
	}
	c.queueMessage(NewRoomStateMessage(presences, turns))
}

// keepPresence owns the session's presence lease for its whole
// lifetime, releasing it eagerly on the way out.
func (c *Client) keepPresence(ctx context.Context) {
	if err := c.db.JoinPresence(ctx, c.roomId, c.userId); err != nil {
		c.log.WithError(err).Error("joining presence failed")
		return
	}
	defer func() {
		if err := c.db.LeavePresence(context.Background(), c.roomId, c.userId); err != nil {
			c.log.WithError(err).Warn("leaving presence failed")
		}
	}()

	ticker := time.NewTicker(presenceRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.db.RenewPresence(ctx, c.roomId, c.userId); err != nil {
				c.log.WithError(err).Warn("renewing presence failed")
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("read failed")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.WithError(err).Warn("malformed message, closing session")
			return
		}

		if err := c.handleMessage(ctx, &msg); err != nil {
			c.log.WithError(err).Error("handling message failed, closing session")
			return
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *ClientMessage) error {
	switch {
	case msg.Chat != nil:
		_, err := c.db.AppendEvent(ctx, c.roomId, store.NewChatEvent(c.userId, msg.Chat.Text))
		return err
	case msg.SetDevice != nil:
		if err := c.db.SetDevice(ctx, c.userId, msg.SetDevice.DeviceId); err != nil {
			return err
		}
		_, err := c.db.AppendEvent(ctx, c.roomId, store.NewDeviceChangedEvent(c.userId))
		return err
	case msg.QueueTrack != nil:
		return c.db.PushTrack(ctx, c.roomId, c.userId, msg.QueueTrack.TrackId)
	case msg.JoinQueue != nil:
		if err := c.db.EnqueueTurn(ctx, c.roomId, c.userId); err != nil {
			return err
		}
		_, err := c.db.AppendEvent(ctx, c.roomId, store.NewQueueChangedEvent())
		return err
	case msg.Ping != nil:
		c.queueMessage(NewPongMessage(msg.Ping.Data))
		return nil
	default:
		return fmt.Errorf("message has no recognized variant")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.WithError(err).Error("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
			c.stats.Incr(statMessagesRelayed)
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send buffer full, dropping message")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.WithError(err).Warn("write failed")
		}
		return false
	}

	return true
}
