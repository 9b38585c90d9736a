package server

// Wire messages exchanged with a connected session. Both directions are
// tagged unions: exactly one variant pointer is set.

type ClientMessage struct {
	Chat       *ChatRequest       `json:"chat,omitempty"`
	SetDevice  *SetDeviceRequest  `json:"set_device,omitempty"`
	QueueTrack *QueueTrackRequest `json:"queue_track,omitempty"`
	JoinQueue  *JoinQueueRequest  `json:"join_queue,omitempty"`
	Ping       *PingRequest       `json:"ping,omitempty"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type SetDeviceRequest struct {
	DeviceId string `json:"device_id"`
}

type QueueTrackRequest struct {
	TrackId string `json:"track_id"`
}

type JoinQueueRequest struct{}

type PingRequest struct {
	Data string `json:"data"`
}

type ServerMessage struct {
	Chat             *ChatNotification `json:"chat,omitempty"`
	RoomState        *RoomState        `json:"room_state,omitempty"`
	UserQueueChanged *UserQueueChanged `json:"user_queue_changed,omitempty"`
	Pong             *Pong             `json:"pong,omitempty"`
}

type ChatNotification struct {
	Id   string `json:"id"`
	From string `json:"from"`
	Text string `json:"text"`
}

// RoomState is the re-derived presence and turn-queue snapshot sent
// whenever either changes.
type RoomState struct {
	Presences []string `json:"presences"`
	Queue     []string `json:"queue"`
}

type UserQueueChanged struct{}

type Pong struct {
	Data string `json:"data"`
}

// systemUser is the sender of server-originated chat notices.
const systemUser = "system"

func NewChatMessage(id, from, text string) *ServerMessage {
	return &ServerMessage{
		Chat: &ChatNotification{
			Id:   id,
			From: from,
			Text: text,
		},
	}
}

// NewSystemMessage builds a chat notice from the server itself,
// delivered to a single session without ever touching the event log.
func NewSystemMessage(text string) *ServerMessage {
	return NewChatMessage("", systemUser, text)
}

func NewRoomStateMessage(presences, queue []string) *ServerMessage {
	if presences == nil {
		presences = []string{}
	}
	if queue == nil {
		queue = []string{}
	}
	return &ServerMessage{
		RoomState: &RoomState{
			Presences: presences,
			Queue:     queue,
		},
	}
}

func NewUserQueueChangedMessage() *ServerMessage {
	return &ServerMessage{UserQueueChanged: &UserQueueChanged{}}
}

func NewPongMessage(data string) *ServerMessage {
	return &ServerMessage{Pong: &Pong{Data: data}}
}
