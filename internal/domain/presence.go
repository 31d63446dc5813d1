package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// UserID accepts both JSON strings and numbers; editors send either.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) String() string { return string(id) }

// UserIDFromInt is used by the load harness, whose simulated editors are numbered.
func UserIDFromInt(n int) UserID { return UserID(strconv.Itoa(n)) }

// User is the identity an editor announces with user-join.
type User struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// PresenceRecord is the last-known awareness state of one user in a room.
type PresenceRecord struct {
	UserID    UserID          `json:"id"`
	Name      string          `json:"name"`
	Color     string          `json:"color"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func NewPresence(u User, at time.Time) PresenceRecord {
	return PresenceRecord{
		UserID:    u.ID,
		Name:      u.Name,
		Color:     u.Color,
		UpdatedAt: at,
	}
}

// SameIdentity reports whether the fields shown in the user list are equal.
func (p PresenceRecord) SameIdentity(o PresenceRecord) bool {
	return p.UserID == o.UserID && p.Name == o.Name && p.Color == o.Color
}
