package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/collab-relay/internal/domain"
)

type header struct {
	Type string `json:"type"`
}

// Decode parses a JSON text frame once at the connection boundary. Errors
// wrap domain.ErrMalformedMessage; an unrecognised type is not an error and
// comes back as Unknown.
func Decode(data []byte) (Message, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if h.Type == "" {
		return nil, fmt.Errorf("%w: missing type", domain.ErrMalformedMessage)
	}

	switch h.Type {
	case TypeUserJoin:
		var m UserJoin
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedMessage, h.Type, err)
		}
		if m.User.ID == "" {
			return nil, fmt.Errorf("%w: %s: user.id is required", domain.ErrMalformedMessage, h.Type)
		}
		return m, nil

	case TypeComponentsUpdate:
		var m ComponentsUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedMessage, h.Type, err)
		}
		if !isArray(m.Components) {
			return nil, fmt.Errorf("%w: %s: components must be an array", domain.ErrMalformedMessage, h.Type)
		}
		return m, nil

	case TypeCursorUpdate:
		var m CursorUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedMessage, h.Type, err)
		}
		return m, nil

	case TypePing:
		var m Ping
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedMessage, h.Type, err)
		}
		return m, nil

	default:
		return Unknown{Tag: h.Type}, nil
	}
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
