package httpmw

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cwrk-planet/collab-relay/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestRequestLogger_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvDev, Backend: logger.BackendStd, Output: &buf})

	h := middleware.RequestID(WithRequestLoggerCtx(RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?x=1", nil))

	out := buf.String()
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, out, "http_request")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "bytes=15")
	assert.Contains(t, out, "path=/health")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "req_id=")
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := sw.Hijack()
	assert.Error(t, err)
}

func TestWebSocketUpgrade_PassesPlainRequests(t *testing.T) {
	var wsHit, nextHit bool
	h := WebSocketUpgrade(func(http.ResponseWriter, *http.Request) { wsHit = true })(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { nextHit = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page-1", nil))
	assert.True(t, nextHit)
	assert.False(t, wsHit)

	req := httptest.NewRequest(http.MethodGet, "/page-1", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	nextHit = false
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, wsHit)
	assert.False(t, nextHit)
}
