package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/collab-relay/internal/transport/http/middleware"
	"github.com/cwrk-planet/collab-relay/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	// Debug mounts /debug/memory.
	Debug bool
}

func NewRouter(h *Handler, wsServer *ws.Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// Upgrades on any path go to the gateway before routing.
	r.Use(httpmw.WebSocketUpgrade(wsServer.HandleWS))

	r.Use(httpmw.Tracing)
	r.Use(httpmw.WithRequestLoggerCtx)
	r.Use(httpmw.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/", h.Health)
		pr.Options("/", h.Preflight)
		pr.Get("/health", h.Health)
		pr.Options("/health", h.Preflight)

		pr.Get("/rooms", h.Rooms)
		pr.Get("/stats", h.Stats)
		pr.Get("/stats/history", h.StatsHistory)

		if opts.Debug {
			pr.Get("/debug/memory", h.DebugMemory)
		}
	})

	r.NotFound(h.NotFound)

	return r
}
