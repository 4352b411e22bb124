// Package ws serves client sessions over websocket. Each connection is a
// protocol.Channel for the house and a source of player commands.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"game-house/internal/house"
	"game-house/internal/protocol"
	"game-house/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer   = 64
	maxReadBytes = 16 << 10
)

var errSlowClient = errors.New("ws: client send buffer full")

// Client is one websocket connection bound to a player session.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	nextID    atomic.Int64
	closed    atomic.Bool
}

func newClient(conn *websocket.Conn, sessionID string) *Client {
	return &Client{conn: conn, send: make(chan []byte, sendBuffer), sessionID: sessionID}
}

// Send frames an engine event. It never blocks: a client that cannot keep up
// is closed and the player drops the channel.
func (c *Client) Send(event string, data any) error {
	if c.closed.Load() {
		return protocol.ErrChannelClosed
	}
	msg, err := json.Marshal(EventFrame{
		Type: "event",
		Event: protocol.Event{
			EventID:   strconv.FormatInt(c.nextID.Add(1), 10),
			Event:     event,
			SessionID: c.sessionID,
			ServerTS:  time.Now().UnixMilli(),
			Data:      data,
		},
	})
	if err != nil {
		return err
	}
	if !safeSend(c.send, msg) {
		_ = c.Close()
		return errSlowClient
	}
	return nil
}

// Close stops the writer, which closes the connection and ends the reader.
func (c *Client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		safeClose(c.send)
	}
	return nil
}

func (c *Client) sendJSON(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("session_id", c.sessionID).Msg("ws marshal failed")
		return
	}
	if !safeSend(c.send, msg) {
		_ = c.Close()
	}
}

type Server struct {
	house    *house.House
	upgrader websocket.Upgrader
}

func NewServer(h *house.House) *Server {
	return &Server{
		house:    h,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.HandleWS(w, r)
}

// HandleWS upgrades the request and connects the session. user_id is
// required; a missing session_id gets a fresh one, and a known one is a
// reconnect.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	sessionID := q.Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	name := q.Get("name")
	if name == "" {
		name = userID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxReadBytes)
	client := newClient(conn, sessionID)
	go s.writeLoop(client)

	p, reconnected, err := s.house.Connect(context.Background(), userID, name, sessionID, client)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("ws connect rejected")
		client.sendJSON(CommandResult{Type: "command_result", ProtocolVersion: ProtocolVersion, Command: "connect", Error: errorCode(err)})
		_ = client.Close()
		return
	}
	client.sendJSON(Welcome{
		Type:            "welcome",
		ProtocolVersion: ProtocolVersion,
		SessionID:       sessionID,
		UserID:          userID,
		Reconnected:     reconnected,
		Balance:         p.User().Balance(),
	})
	s.readLoop(client, p)
}

func (s *Server) readLoop(c *Client, p *session.Player) {
	defer func() {
		_ = c.Close()
		// A replaced connection must not disconnect its successor.
		if ch := p.Channel(); ch == nil || ch == c {
			_ = s.house.Disconnect(c.sessionID)
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.sendJSON(Dispatch(context.Background(), s.house, c.sessionID, msg))
	}
}

func (s *Server) writeLoop(c *Client) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func safeClose(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

func safeSend(ch chan []byte, msg []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
