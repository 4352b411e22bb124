package httptransport

import (
	"context"
	"net/http"

	"game-house/internal/house"

	"github.com/rs/zerolog/log"
)

// Pinger is implemented by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandlers struct {
	house *house.House
	db    Pinger
}

// NewAdminHandlers builds the admin handlers. db may be nil when running
// without Postgres.
func NewAdminHandlers(h *house.House, db Pinger) *AdminHandlers {
	return &AdminHandlers{house: h, db: db}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.db == nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "none", "paused": h.house.Paused()})
			return
		}
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up", "paused": h.house.Paused()})
	}
}

func (h *AdminHandlers) Pause() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		changed := h.house.Pause()
		metricAdminPauseTotal.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed, "paused": true})
	}
}

func (h *AdminHandlers) Resume() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		changed := h.house.Resume()
		metricAdminResumeTotal.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed, "paused": false})
	}
}

func (h *AdminHandlers) Save() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricSaveTotal.Add(1)
		if err := h.house.Save(r.Context()); err != nil {
			metricSaveErrors.Add(1)
			log.Error().Err(err).Msg("admin save failed")
			WriteHTTPError(w, http.StatusInternalServerError, "save_failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// Reload re-reads the catalog file; the house picks up new lobbies and rooms
// through the catalog's reload signal.
func (h *AdminHandlers) Reload() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		metricReloadTotal.Add(1)
		catalog := h.house.Catalog()
		if err := catalog.Reload(); err != nil {
			metricReloadErrors.Add(1)
			log.Error().Err(err).Msg("admin reload failed")
			WriteHTTPError(w, http.StatusUnprocessableEntity, "reload_failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": catalog.Version()})
	}
}

func (h *AdminHandlers) Snapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap, err := h.house.Export()
		if err != nil {
			log.Error().Err(err).Msg("admin snapshot failed")
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
