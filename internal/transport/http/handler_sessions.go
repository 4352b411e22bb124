package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"game-house/internal/house"
	"game-house/internal/protocol"
	"game-house/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var ssePingInterval = 15 * time.Second

const sessionBufferSize = 500

// SessionHandlers serve clients that cannot hold a websocket: events are
// buffered per session and streamed over SSE, commands come in as POSTs.
type SessionHandlers struct {
	house *house.House

	mu      sync.Mutex
	buffers map[string]*protocol.Buffer
}

func NewSessionHandlers(h *house.House) *SessionHandlers {
	return &SessionHandlers{house: h, buffers: map[string]*protocol.Buffer{}}
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	SessionID string `json:"session_id"`
}

type createSessionResponse struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	Reconnected bool   `json:"reconnected"`
	Balance     int64  `json:"balance"`
	EventsURL   string `json:"events_url"`
	CommandsURL string `json:"commands_url"`
}

// Create connects a session whose channel is an event buffer. Posting a known
// session id again reconnects it, keeping its buffer while that is still the
// player's channel.
func (h *SessionHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricSessionCreateTotal.Add(1)
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			metricSessionCreateErrors.Add(1)
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		if req.Name == "" {
			req.Name = req.UserID
		}

		buf := h.bufferFor(req.SessionID)
		p, reconnected, err := h.house.Connect(r.Context(), req.UserID, req.Name, req.SessionID, buf)
		if err != nil {
			metricSessionCreateErrors.Add(1)
			status, code := mapSessionErr(err)
			WriteHTTPError(w, status, code)
			return
		}
		h.mu.Lock()
		h.buffers[req.SessionID] = buf
		h.mu.Unlock()

		base := "/api/sessions/" + req.SessionID
		writeJSON(w, http.StatusOK, createSessionResponse{
			SessionID:   req.SessionID,
			UserID:      req.UserID,
			Reconnected: reconnected,
			Balance:     p.User().Balance(),
			EventsURL:   base + "/events",
			CommandsURL: base + "/commands",
		})
	}
}

func (h *SessionHandlers) bufferFor(sessionID string) *protocol.Buffer {
	h.mu.Lock()
	buf := h.buffers[sessionID]
	h.mu.Unlock()
	if buf != nil {
		if p, ok := h.house.Player(sessionID); ok && p.Channel() == buf {
			return buf
		}
	}
	return protocol.NewBuffer(sessionID, sessionBufferSize)
}

func (h *SessionHandlers) buffer(sessionID string) *protocol.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffers[sessionID]
}

// Events streams the session buffer as SSE. Last-Event-ID replays what the
// client missed.
func (h *SessionHandlers) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		buf := h.buffer(sessionID)
		if buf == nil {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteHTTPError(w, http.StatusInternalServerError, "stream_not_supported")
			return
		}
		setSSEHeaders(w)

		for _, ev := range buf.ReplayAfter(r.Header.Get("Last-Event-ID")) {
			if err := writeSSE(w, ev); err != nil {
				return
			}
		}
		flusher.Flush()

		ch := buf.Subscribe()
		defer buf.Unsubscribe(ch)
		ticker := time.NewTicker(ssePingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := writeSSE(w, ev); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				ping := protocol.Event{
					Event:     "ping",
					SessionID: sessionID,
					ServerTS:  time.Now().UnixMilli(),
					Data:      map[string]any{"ts": time.Now().UnixMilli()},
				}
				if err := writeSSE(w, ping); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// Command runs one command frame, the same ones the websocket accepts.
func (h *SessionHandlers) Command() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if h.buffer(sessionID) == nil {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 16<<10))
		if err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		metricSessionCommandTotal.Add(1)
		writeJSON(w, http.StatusOK, ws.Dispatch(r.Context(), h.house, sessionID, body))
	}
}

func (h *SessionHandlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		h.mu.Lock()
		_, ok := h.buffers[sessionID]
		delete(h.buffers, sessionID)
		h.mu.Unlock()
		if !ok {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		if err := h.house.Leave(r.Context(), sessionID); err != nil && !errors.Is(err, house.ErrUnknownSession) {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func mapSessionErr(err error) (int, string) {
	switch {
	case errors.Is(err, house.ErrSessionConflict):
		return http.StatusConflict, "session_conflict"
	case errors.Is(err, house.ErrStopped):
		return http.StatusServiceUnavailable, "shutting_down"
	}
	return http.StatusInternalServerError, "internal_error"
}

func setSSEHeaders(w http.ResponseWriter) {
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache, no-transform")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
}

func writeSSE(w io.Writer, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.EventID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.EventID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
