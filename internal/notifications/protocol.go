package notifications

import (
	"encoding/json"
	"time"

	"hearth/internal/chatview"
)

// Inbound and outbound event names.
const (
	EventUserConnect    = "user:connect"
	EventUserConnected  = "user:connected"
	EventPrivateMessage = "private message"
	EventGroupMessage   = "group message"
	EventNewMessage     = "new message"
	EventUnreadMessage  = "unread message"
	EventEnterChat      = "enterChat"
	EventLeaveChat      = "leaveChat"
	EventError          = "error"
)

// Error codes sent in ErrorPayload.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotIdentified = "NOT_IDENTIFIED"
	CodeIdentity      = "IDENTITY_MISMATCH"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeUnknownEvent  = "UNKNOWN_EVENT"
)

// Envelope is the JSON text frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type UserConnectPayload struct {
	UserID uint `json:"userId"`
}

type UserConnectedPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type PrivateMessagePayload struct {
	Content    string `json:"content"`
	To         uint   `json:"to"`
	From       uint   `json:"from"`
	SenderName string `json:"senderName"`
}

type GroupMessagePayload struct {
	Content    string `json:"content"`
	GroupID    uint   `json:"groupId"`
	From       uint   `json:"from"`
	SenderName string `json:"senderName"`
}

type ChatPresencePayload struct {
	UserID uint `json:"userId"`
	ChatID uint `json:"chatId"`
}

type NewMessagePayload struct {
	ChatID  uint                      `json:"chatId"`
	Message chatview.FormattedMessage `json:"message"`
}

type UnreadMessagePayload struct {
	ChatID     uint      `json:"chatId"`
	From       uint      `json:"from"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Encode builds an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
