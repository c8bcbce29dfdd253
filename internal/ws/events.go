package ws

import (
	"encoding/json"

	"roomchat-service/internal/models"
)

// Client -> server events.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventNewMessage  = "newMessage"
	EventEditMessage = "editMessage"
	EventTyping      = "typing"
)

// Server -> client events.
const (
	EventHistory        = "history"
	EventMessage        = "message"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventSystem         = "system"
	EventUserTyping     = "userTyping"
	EventRoomJoined     = "roomJoined"
	EventError          = "error"
)

// Envelope frames every message exchanged over a session socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomData struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomData struct {
	RoomID string `json:"roomId"`
}

type NewMessageData struct {
	RoomID string `json:"roomId"`
	Type   string `json:"type"`
	Text   string `json:"text"`
}

type EditMessageData struct {
	MessageID int    `json:"messageId"`
	NewText   string `json:"newText"`
}

type TypingData struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type HistoryData struct {
	RoomID   string           `json:"roomId"`
	Messages []models.Message `json:"messages"`
}

type SystemData struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type UserTypingData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type RoomJoinedData struct {
	Room models.Room `json:"room"`
}

type MessageDeletedData struct {
	RoomID    string `json:"roomId"`
	MessageID int    `json:"messageId"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
