package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

// events reads the replayed part of the stream; the request context is
// already cancelled so the handler returns after the replay.
func (s *testServer) events(t *testing.T, sessionID, lastEventID string) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/events", nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, "", nil)

	rec, body := s.post(t, "/api/sessions", `{"user_id":"u1","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, false, body["reconnected"])
	assert.Equal(t, float64(1000), body["balance"])
	assert.Equal(t, "/api/sessions/s1/events", body["events_url"])

	rec, body = s.post(t, "/api/sessions/s1/commands", `{"type":"find_room","request_id":"r1","mode":"seat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "r1", body["request_id"])
	assert.Equal(t, true, body["data"].(map[string]any)["seated"])

	p, ok := s.house.Player("s1")
	require.True(t, ok)
	assert.True(t, p.Seated())

	stream := s.events(t, "s1", "")
	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))
	assert.Contains(t, stream.Body.String(), "id: 1\n")
	assert.Contains(t, stream.Body.String(), "event: room_snapshot\n")

	stream = s.events(t, "s1", "1000")
	assert.NotContains(t, stream.Body.String(), "event:")

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok = s.house.Player("s1")
	assert.False(t, ok)

	rec, body = s.post(t, "/api/sessions/s1/commands", `{"type":"stand"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", body["error"])
}

func TestSessionReconnectKeepsBuffer(t *testing.T) {
	s := newTestServer(t, "", nil)

	_, _ = s.post(t, "/api/sessions", `{"user_id":"u1","session_id":"s1"}`)
	_, body := s.post(t, "/api/sessions/s1/commands", `{"type":"find_room","mode":"visitor"}`)
	require.Equal(t, true, body["ok"])

	rec, body := s.post(t, "/api/sessions", `{"user_id":"u1","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["reconnected"])

	stream := s.events(t, "s1", "")
	assert.Contains(t, stream.Body.String(), "id: 1\n")
}

func TestSessionErrors(t *testing.T) {
	s := newTestServer(t, "", nil)

	rec, body := s.post(t, "/api/sessions", `{"name":"nobody"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", body["error"])

	_, _ = s.post(t, "/api/sessions", `{"user_id":"u1","session_id":"s1"}`)
	rec, body = s.post(t, "/api/sessions", `{"user_id":"u2","session_id":"s1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_conflict", body["error"])

	rec = s.events(t, "missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.post(t, "/api/sessions/s1/commands", `{"type":"dance"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown_command", body["error"])
}
