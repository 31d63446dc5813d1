package ws

import "strings"

const DefaultRoomID = "default"

// RoomIDFromPath returns the last non-empty path segment, e.g.
// "/page:b53b2ee5" -> "page:b53b2ee5", or DefaultRoomID.
func RoomIDFromPath(p string) string {
	segs := strings.Split(p, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segs[i]); s != "" {
			return s
		}
	}
	return DefaultRoomID
}
