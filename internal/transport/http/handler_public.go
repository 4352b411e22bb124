package httptransport

import (
	"net/http"

	"game-house/internal/house"
	"game-house/internal/table"

	"github.com/go-chi/chi/v5"
)

type PublicHandlers struct {
	house *house.House
}

func NewPublicHandlers(h *house.House) *PublicHandlers {
	return &PublicHandlers{house: h}
}

type lobbyItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rooms int    `json:"rooms"`
}

func (h *PublicHandlers) Lobbies() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := []lobbyItem{}
		for _, l := range h.house.Lobbies() {
			items = append(items, lobbyItem{ID: l.ID(), Name: l.Name(), Rooms: len(l.Rooms())})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "paused": h.house.Paused()})
	}
}

// LobbyRooms lists the rooms of a lobby. Private rooms only show up for their
// owner, passed as ?user_id=.
func (h *PublicHandlers) LobbyRooms() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := h.house.Lobby(chi.URLParam(r, "lobby_id"))
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "lobby_not_found")
			return
		}
		items := l.Infos(r.URL.Query().Get("user_id"))
		if kind := r.URL.Query().Get("kind"); kind != "" {
			filtered := make([]table.RoomInfo, 0, len(items))
			for _, info := range items {
				if info.Kind == kind {
					filtered = append(filtered, info)
				}
			}
			items = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{"lobby_id": l.ID(), "items": items})
	}
}

func (h *PublicHandlers) Room() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := h.house.Lobby(chi.URLParam(r, "lobby_id"))
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "lobby_not_found")
			return
		}
		room, ok := l.Room(chi.URLParam(r, "room_id"))
		if !ok || !room.VisibleTo(r.URL.Query().Get("user_id")) {
			WriteHTTPError(w, http.StatusNotFound, "room_not_found")
			return
		}
		writeJSON(w, http.StatusOK, room.Snapshot())
	}
}
