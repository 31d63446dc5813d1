package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// InstanceID is hostname plus a short random suffix unless v is set.
func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	hn, _ := os.Hostname()
	return hn + "-" + uuid.New().String()[:8]
}

func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}

// NewInstanceID is exported for components that tag their own output
// (e.g. stats snapshots) with the same scheme.
func NewInstanceID() string {
	return ensureInstanceID("")
}
