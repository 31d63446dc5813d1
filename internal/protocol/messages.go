package protocol

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"
)

// Control message types exchanged as JSON text frames.
const (
	TypeConnectionEstablished = "connection-established" // server -> client, right after upgrade
	TypeUserJoin              = "user-join"              // client announces identity
	TypeUserList              = "user-list"              // server -> clients, presence snapshot
	TypeComponentsUpdate      = "components-update"      // component tree replaced
	TypeCursorUpdate          = "cursor-update"          // cursor / viewport moved
	TypePing                  = "ping"
	TypePong                  = "pong"
)

// Message is one decoded inbound control message. The set of
// implementations is closed; Unknown carries anything unrecognised.
type Message interface {
	Type() string
}

type UserJoin struct {
	User domain.User `json:"user"`
}

type ComponentsUpdate struct {
	Components json.RawMessage `json:"components"`
	UserID     domain.UserID   `json:"userId,omitempty"`
}

type CursorUpdate struct {
	Cursor json.RawMessage `json:"cursor"`
	UserID domain.UserID   `json:"userId,omitempty"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

type Unknown struct {
	Tag string
}

func (UserJoin) Type() string         { return TypeUserJoin }
func (ComponentsUpdate) Type() string { return TypeComponentsUpdate }
func (CursorUpdate) Type() string     { return TypeCursorUpdate }
func (Ping) Type() string             { return TypePing }
func (u Unknown) Type() string        { return u.Tag }

// --- outbound ---

type ConnectionEstablishedMessage struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	RoomID       string `json:"roomId"`
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

type UserListMessage struct {
	Type  string                  `json:"type"`
	Users []domain.PresenceRecord `json:"users"`
}

type ComponentsUpdateMessage struct {
	Type       string          `json:"type"`
	Components json.RawMessage `json:"components"`
	UserID     domain.UserID   `json:"userId,omitempty"`
}

type CursorUpdateMessage struct {
	Type   string          `json:"type"`
	Cursor json.RawMessage `json:"cursor,omitempty"`
	UserID domain.UserID   `json:"userId,omitempty"`
}

// PongMessage echoes the client's timestamp so it can measure round trips;
// ServerTime is the relay's clock in unix milliseconds.
type PongMessage struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	ServerTime int64  `json:"serverTime"`
}

func EncodeConnectionEstablished(roomID, connID string, at time.Time) ([]byte, error) {
	return json.Marshal(ConnectionEstablishedMessage{
		Type:         TypeConnectionEstablished,
		Status:       "connected",
		RoomID:       roomID,
		ConnectionID: connID,
		Timestamp:    at.UnixMilli(),
	})
}

func EncodeUserList(users []domain.PresenceRecord) ([]byte, error) {
	if users == nil {
		users = []domain.PresenceRecord{}
	}
	return json.Marshal(UserListMessage{Type: TypeUserList, Users: users})
}

func EncodeComponentsUpdate(components json.RawMessage, userID domain.UserID) ([]byte, error) {
	return json.Marshal(ComponentsUpdateMessage{
		Type:       TypeComponentsUpdate,
		Components: components,
		UserID:     userID,
	})
}

func EncodeCursorUpdate(cursor json.RawMessage, userID domain.UserID) ([]byte, error) {
	return json.Marshal(CursorUpdateMessage{
		Type:   TypeCursorUpdate,
		Cursor: cursor,
		UserID: userID,
	})
}

func EncodePong(clientTS int64, at time.Time) ([]byte, error) {
	ts := clientTS
	if ts == 0 {
		ts = at.UnixMilli()
	}
	return json.Marshal(PongMessage{Type: TypePong, Timestamp: ts, ServerTime: at.UnixMilli()})
}
