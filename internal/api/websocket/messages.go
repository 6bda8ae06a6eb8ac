package websocket

import (
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeEntriesUpdated MessageType = "entries_updated"
	MessageTypeRefreshFailed  MessageType = "refresh_failed"
	MessageTypeSystemStatus   MessageType = "system_status"

	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type RefreshFailedData struct {
	Bank  string `json:"bank"`
	Error string `json:"error"`
}

type SubscribedData struct {
	Entries []string `json:"entries"`
}

// clientMessage is sent by clients: auth, subscribe or unsubscribe.
type clientMessage struct {
	Type    string   `json:"type"`
	Token   string   `json:"token,omitempty"`
	Entries []string `json:"entries,omitempty"`
}

func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewEntriesMessage(infos []registry.Info) Message {
	return NewMessage(MessageTypeEntriesUpdated, infos)
}

func NewRefreshFailedMessage(bank string, err error) Message {
	return NewMessage(MessageTypeRefreshFailed, RefreshFailedData{Bank: bank, Error: err.Error()})
}
