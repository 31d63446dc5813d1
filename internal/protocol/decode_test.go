package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Message
		wantErr bool
	}{
		{
			name: "user-join with string id",
			in:   `{"type":"user-join","user":{"id":"u1","name":"Alice","color":"#f00"}}`,
			want: UserJoin{User: domain.User{ID: "u1", Name: "Alice", Color: "#f00"}},
		},
		{
			name: "user-join with numeric id",
			in:   `{"type":"user-join","user":{"id":7,"name":"TestUser7"}}`,
			want: UserJoin{User: domain.User{ID: "7", Name: "TestUser7"}},
		},
		{
			name:    "user-join without user",
			in:      `{"type":"user-join"}`,
			wantErr: true,
		},
		{
			name: "components-update",
			in:   `{"type":"components-update","components":[{"id":"c1"}],"userId":"A"}`,
			want: ComponentsUpdate{Components: json.RawMessage(`[{"id":"c1"}]`), UserID: "A"},
		},
		{
			name:    "components-update without components",
			in:      `{"type":"components-update","userId":"A"}`,
			wantErr: true,
		},
		{
			name:    "components-update with object",
			in:      `{"type":"components-update","components":{"id":"c1"}}`,
			wantErr: true,
		},
		{
			name: "cursor-update",
			in:   `{"type":"cursor-update","cursor":{"x":1},"userId":"A"}`,
			want: CursorUpdate{Cursor: json.RawMessage(`{"x":1}`), UserID: "A"},
		},
		{
			name: "ping",
			in:   `{"type":"ping","timestamp":1700000000000}`,
			want: Ping{Timestamp: 1700000000000},
		},
		{
			name: "unknown type",
			in:   `{"type":"awareness-hack"}`,
			want: Unknown{Tag: "awareness-hack"},
		},
		{
			name: "client-sent pong is unknown",
			in:   `{"type":"pong"}`,
			want: Unknown{Tag: "pong"},
		},
		{
			name:    "not json",
			in:      `hello`,
			wantErr: true,
		},
		{
			name:    "missing type",
			in:      `{"user":{"id":"u1"}}`,
			wantErr: true,
		},
		{
			name:    "array root",
			in:      `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrMalformedMessage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodePong(t *testing.T) {
	at := time.UnixMilli(5000)

	data, err := EncodePong(1234, at)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","timestamp":1234,"serverTime":5000}`, string(data))

	data, err = EncodePong(0, at)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","timestamp":5000,"serverTime":5000}`, string(data))
}

func TestEncodeUserListNeverNull(t *testing.T) {
	data, err := EncodeUserList(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user-list","users":[]}`, string(data))
}
