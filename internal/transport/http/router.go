package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"game-house/internal/config"
	"game-house/internal/house"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter mounts the public listing API, the SSE session API, the admin API
// and, when ws is not nil, the client websocket endpoint. db may be nil.
func NewRouter(h *house.House, cfg config.ServerConfig, db Pinger, ws http.Handler) *chi.Mux {
	publicHandlers := NewPublicHandlers(h)
	adminHandlers := NewAdminHandlers(h, db)
	sessionHandlers := NewSessionHandlers(h)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	if ws != nil {
		r.Handle("/ws", ws)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/lobbies", publicHandlers.Lobbies())
		r.Get("/lobbies/{lobby_id}/rooms", publicHandlers.LobbyRooms())
		r.Get("/lobbies/{lobby_id}/rooms/{room_id}", publicHandlers.Room())

		r.Post("/sessions", sessionHandlers.Create())
		r.Delete("/sessions/{session_id}", sessionHandlers.Delete())
		r.Get("/sessions/{session_id}/events", sessionHandlers.Events())
		r.Post("/sessions/{session_id}/commands", sessionHandlers.Command())

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Use(BodyCaptureMiddleware(4096))
			r.Post("/pause", adminHandlers.Pause())
			r.Post("/resume", adminHandlers.Resume())
			r.Post("/save", adminHandlers.Save())
			r.Post("/reload", adminHandlers.Reload())
			r.Get("/snapshot", adminHandlers.Snapshot())
			r.Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 16)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
