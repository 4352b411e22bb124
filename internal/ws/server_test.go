package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"game-house/internal/backend"
	"game-house/internal/config"
	"game-house/internal/house"
	"game-house/internal/protocol"
	"game-house/internal/store"
	"game-house/internal/timer"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `{
  "house": {"name": "test", "state_name": "house"},
  "lobbies": [{"id": "main", "name": "Main", "rooms": ["std"]}],
  "rooms": [
    {"id": "std", "name": "Standard", "capacity": 4, "game": {"kind": "turns", "max_seats": 2, "min_buy_in": 100}}
  ]
}`

type frame struct {
	Type        string          `json:"type"`
	Event       string          `json:"event"`
	Command     string          `json:"command"`
	RequestID   string          `json:"request_id"`
	Ok          bool            `json:"ok"`
	Error       string          `json:"error"`
	SessionID   string          `json:"session_id"`
	Reconnected bool            `json:"reconnected"`
	Balance     int64           `json:"balance"`
	Data        json.RawMessage `json:"data"`
}

func newTestHouse(t *testing.T) (*house.House, *httptest.Server) {
	t.Helper()
	catalog, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	reg := timer.NewRegistry(timer.NewLoopDriver(10 * time.Millisecond))
	h := house.New(catalog, reg, store.NewMemoryStates(), backend.NewMemory(1000))
	require.NoError(t, h.Start(context.Background()))
	srv := httptest.NewServer(NewServer(h))
	t.Cleanup(func() {
		srv.Close()
		_ = h.Stop(context.Background())
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads frames until one matches.
func next(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(msg, &f))
		if match(f) {
			return f
		}
	}
}

func isType(typ string) func(frame) bool {
	return func(f frame) bool { return f.Type == typ }
}

func call(t *testing.T, conn *websocket.Conn, cmd map[string]any) frame {
	t.Helper()
	cmd["request_id"] = "req-" + cmd["type"].(string)
	require.NoError(t, conn.WriteJSON(cmd))
	return next(t, conn, func(f frame) bool {
		return f.Type == "command_result" && f.RequestID == cmd["request_id"]
	})
}

func TestHandshakeRequiresUser(t *testing.T) {
	_, srv := newTestHouse(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWelcomeAssignsSessionID(t *testing.T) {
	h, srv := newTestHouse(t)
	conn := dial(t, srv, "user_id=u1")

	w := next(t, conn, isType("welcome"))
	assert.NotEmpty(t, w.SessionID)
	assert.False(t, w.Reconnected)
	assert.Equal(t, int64(1000), w.Balance)

	_, ok := h.Player(w.SessionID)
	assert.True(t, ok)
}

func TestFindRoomSeatsPlayer(t *testing.T) {
	h, srv := newTestHouse(t)
	conn := dial(t, srv, "user_id=u1&session_id=s1")
	next(t, conn, isType("welcome"))

	res := call(t, conn, map[string]any{"type": CmdFindRoom, "mode": "seat"})
	require.True(t, res.Ok, res.Error)
	var data struct {
		Joined bool `json:"joined"`
		Seated bool `json:"seated"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.True(t, data.Joined)
	assert.True(t, data.Seated)

	p, ok := h.Player("s1")
	require.True(t, ok)
	assert.NotEmpty(t, p.RoomID())
	assert.True(t, p.Seated())

	res = call(t, conn, map[string]any{"type": CmdStand})
	assert.True(t, res.Ok)
	assert.False(t, p.Seated())

	res = call(t, conn, map[string]any{"type": CmdLeaveRoom})
	assert.True(t, res.Ok)
	assert.Empty(t, p.RoomID())
}

func TestCommandOutsideRoomSendsDialog(t *testing.T) {
	_, srv := newTestHouse(t)
	conn := dial(t, srv, "user_id=u1&session_id=s1")
	next(t, conn, isType("welcome"))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": CmdSit, "request_id": "r1", "money": 100}))
	dialog := next(t, conn, isType("event"))
	assert.Equal(t, protocol.EventDialog, dialog.Event)
	assert.JSONEq(t, `{"code":"not_in_room"}`, string(dialog.Data))

	res := next(t, conn, isType("command_result"))
	assert.Equal(t, "r1", res.RequestID)
	assert.False(t, res.Ok)
	assert.Empty(t, res.Error)
}

func TestCommandErrors(t *testing.T) {
	_, srv := newTestHouse(t)
	conn := dial(t, srv, "user_id=u1&session_id=s1")
	next(t, conn, isType("welcome"))

	res := call(t, conn, map[string]any{"type": "dance"})
	assert.Equal(t, ErrCodeUnknownCommand, res.Error)

	res = call(t, conn, map[string]any{"type": CmdFindRoom, "mode": "sideways"})
	assert.Equal(t, ErrCodeInvalidMode, res.Error)

	res = call(t, conn, map[string]any{"type": CmdJoinRoom, "room_id": "nope"})
	assert.Equal(t, ErrCodeRoomNotFound, res.Error)

	res = call(t, conn, map[string]any{"type": CmdJoinRoom, "lobby_id": "nope", "room_id": "x"})
	assert.Equal(t, ErrCodeLobbyNotFound, res.Error)

	res = call(t, conn, map[string]any{"type": CmdAction})
	assert.Equal(t, ErrCodeInvalidMessage, res.Error)
}

func TestReconnectKeepsSeat(t *testing.T) {
	h, srv := newTestHouse(t)
	first := dial(t, srv, "user_id=u1&session_id=s1")
	next(t, first, isType("welcome"))
	res := call(t, first, map[string]any{"type": CmdFindRoom, "mode": "seat"})
	require.True(t, res.Ok)
	p, _ := h.Player("s1")

	// The room resends its snapshot while connecting, ahead of the welcome.
	second := dial(t, srv, "user_id=u1&session_id=s1")
	snap := next(t, second, func(f frame) bool { return f.Event == protocol.EventRoomSnapshot })
	assert.NotEmpty(t, snap.Data)
	w := next(t, second, isType("welcome"))
	assert.True(t, w.Reconnected)

	// The replaced socket is closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	again, ok := h.Player("s1")
	require.True(t, ok)
	assert.Same(t, p, again)
	assert.True(t, again.Seated())
	assert.True(t, again.Connected())
}

func TestDisconnectKeepsPlayer(t *testing.T) {
	h, srv := newTestHouse(t)
	conn := dial(t, srv, "user_id=u1&session_id=s1")
	next(t, conn, isType("welcome"))
	p, ok := h.Player("s1")
	require.True(t, ok)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !p.Connected() }, 2*time.Second, 10*time.Millisecond)
	_, ok = h.Player("s1")
	assert.True(t, ok)
}

func TestSessionConflictRejected(t *testing.T) {
	_, srv := newTestHouse(t)
	conn := dial(t, srv, "user_id=u1&session_id=s1")
	next(t, conn, isType("welcome"))

	other := dial(t, srv, "user_id=u2&session_id=s1")
	res := next(t, other, isType("command_result"))
	assert.Equal(t, "connect", res.Command)
	assert.Equal(t, ErrCodeSessionConflict, res.Error)
}
