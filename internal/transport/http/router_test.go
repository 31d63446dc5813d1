package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-relay/internal/hub"
	"github.com/cwrk-planet/collab-relay/internal/metrics"
	"github.com/cwrk-planet/collab-relay/internal/service"
	"github.com/cwrk-planet/collab-relay/internal/transport/ws"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	registry *hub.Registry
	counters *metrics.Counters
	srv      *httptest.Server
}

func newFixture(t *testing.T, opts RouterOptions) *fixture {
	t.Helper()
	counters := metrics.NewCounters()
	registry := hub.NewRegistry(counters)
	wsServer := ws.NewServer(ws.Config{}, registry, counters)
	reporter := metrics.NewReporter(registry, counters, time.Minute, "test-instance")
	h := NewHandler(registry, service.NewStatsService(reporter, nil), "")

	srv := httptest.NewServer(NewRouter(h, wsServer, opts))
	t.Cleanup(srv.Close)
	return &fixture{registry: registry, counters: counters, srv: srv}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, RouterOptions{})

	for _, path := range []string{"/", "/health"} {
		var body HealthResponse
		resp := getJSON(t, f.srv.URL+path, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, "running", body.Status)
		assert.Equal(t, DefaultServerName, body.Server)
		assert.Zero(t, body.Rooms)
		assert.Zero(t, body.TotalClients)
		assert.WithinDuration(t, time.Now(), body.Timestamp, time.Minute)
	}
}

func TestHealth_CORS(t *testing.T) {
	f := newFixture(t, RouterOptions{})

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://builder.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, f.srv.URL+"/health", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpgradeOnAnyPath(t *testing.T) {
	f := newFixture(t, RouterOptions{})

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/page:b53b2ee5"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hello map[string]any
	require.NoError(t, c.ReadJSON(&hello))
	assert.Equal(t, "connection-established", hello["type"])
	assert.Equal(t, "page:b53b2ee5", hello["roomId"])

	require.Eventually(t, func() bool {
		var body HealthResponse
		getJSON(t, f.srv.URL+"/health", &body)
		return body.Rooms == 1 && body.TotalClients == 1
	}, 2*time.Second, 20*time.Millisecond)

	var rooms RoomsResponse
	getJSON(t, f.srv.URL+"/rooms", &rooms)
	require.Len(t, rooms.Items, 1)
	assert.Equal(t, "page:b53b2ee5", rooms.Items[0].ID)
	assert.Equal(t, 1, rooms.Items[0].Members)
}

func TestStats(t *testing.T) {
	f := newFixture(t, RouterOptions{})
	f.counters.MessagesRelayed.Add(7)

	var body map[string]any
	resp := getJSON(t, f.srv.URL+"/stats", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test-instance", body["instance"])
	counters, ok := body["counters"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, counters["messagesRelayed"])
}

func TestStatsHistory_PersistenceOff(t *testing.T) {
	f := newFixture(t, RouterOptions{})

	var body ErrorResponse
	resp := getJSON(t, f.srv.URL+"/stats/history", &body)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.NotEmpty(t, body.Error)

	resp = getJSON(t, f.srv.URL+"/stats/history?limit=abc", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDebugMemory(t *testing.T) {
	off := newFixture(t, RouterOptions{})
	resp := getJSON(t, off.srv.URL+"/debug/memory", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	on := newFixture(t, RouterOptions{Debug: true})
	var body MemoryResponse
	resp = getJSON(t, on.srv.URL+"/debug/memory", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotZero(t, body.HeapAlloc)
	assert.NotZero(t, body.Goroutines)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, RouterOptions{})

	var body ErrorResponse
	resp := getJSON(t, f.srv.URL+"/nope", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", body.Error)
}
