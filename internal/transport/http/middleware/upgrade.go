package httpmw

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketUpgrade hands every upgrade request to ws regardless of path;
// the room id is the last path segment, so routing cannot know it upfront.
func WebSocketUpgrade(ws http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				ws(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
