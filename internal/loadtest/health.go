package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrMemoryEndpointDisabled = errors.New("relay does not expose /debug/memory")

type HealthStatus struct {
	Status       string    `json:"status"`
	Server       string    `json:"server"`
	Rooms        int       `json:"rooms"`
	TotalClients int       `json:"totalClients"`
	Timestamp    time.Time `json:"timestamp"`
}

type MemorySample struct {
	Goroutines   int       `json:"goroutines"`
	HeapAlloc    uint64    `json:"heapAlloc"`
	HeapInuse    uint64    `json:"heapInuse"`
	RSS          uint64    `json:"rss"`
	Rooms        int       `json:"rooms"`
	TotalClients int       `json:"totalClients"`
	Timestamp    time.Time `json:"timestamp"`
}

// HealthClient polls the relay's plain HTTP endpoints.
type HealthClient struct {
	base      string
	http      *http.Client
	pollEvery time.Duration
}

func NewHealthClient(base string) *HealthClient {
	return &HealthClient{
		base:      strings.TrimRight(base, "/"),
		http:      &http.Client{Timeout: 5 * time.Second},
		pollEvery: 100 * time.Millisecond,
	}
}

func (h *HealthClient) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	err := h.get(ctx, "/health", &out)
	return out, err
}

// Memory asks the relay to GC and report its heap.
func (h *HealthClient) Memory(ctx context.Context) (MemorySample, error) {
	var out MemorySample
	err := h.get(ctx, "/debug/memory", &out)
	return out, err
}

func (h *HealthClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && path == "/debug/memory":
		return ErrMemoryEndpointDisabled
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// WaitFor polls /health until cond holds or timeout elapses. It returns
// the last status seen and how long it took.
func (h *HealthClient) WaitFor(ctx context.Context, timeout time.Duration, cond func(HealthStatus) bool) (HealthStatus, time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(h.pollEvery)
	defer t.Stop()

	var (
		last    HealthStatus
		lastErr error
	)
	for {
		st, err := h.Health(ctx)
		if err == nil {
			last = st
			if cond(st) {
				return st, time.Since(start), nil
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil && last.Status == "" {
				return last, time.Since(start), fmt.Errorf("health unreachable: %w", lastErr)
			}
			return last, time.Since(start), fmt.Errorf("condition not met within %s: rooms=%d clients=%d",
				timeout, last.Rooms, last.TotalClients)
		case <-t.C:
		}
	}
}
