package house

import (
	"context"

	"game-house/internal/lobby"
	"game-house/internal/protocol"
	"game-house/internal/session"
	"game-house/internal/table"
)

// Command entry points used by client transports. Soft failures are reported
// to the player as dialogs and come back as false; errors mean the session or
// target does not exist.

func (h *House) player(sessionID string) (*session.Player, error) {
	p, ok := h.Player(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	return p, nil
}

func (h *House) lobbyOrFirst(id string) (*lobby.Lobby, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == "" && len(h.lobbies) > 0 {
		return h.lobbies[0], nil
	}
	if l := h.lobbyLocked(id); l != nil {
		return l, nil
	}
	return nil, ErrUnknownLobby
}

func (h *House) currentRoom(p *session.Player) (*table.Room, bool) {
	r := h.roomOf(p)
	if r == nil {
		p.Dialog(protocol.DialogNotInRoom, "")
		return nil, false
	}
	return r, true
}

// FindRoom runs matchmaking in lobbyID, or the first lobby when empty. A
// player moving rooms leaves its current one first.
func (h *House) FindRoom(ctx context.Context, sessionID, lobbyID string, mode lobby.Mode, criteria lobby.Criteria) (lobby.FindResult, bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return lobby.FindResult{}, false, err
	}
	l, err := h.lobbyOrFirst(lobbyID)
	if err != nil {
		return lobby.FindResult{}, false, err
	}
	if mode != lobby.FindInfo {
		if r := h.roomOf(p); r != nil {
			r.RemovePlayer(ctx, p)
		}
	}
	res, ok := l.FindFreeRoom(ctx, p, mode, criteria)
	return res, ok, nil
}

func (h *House) JoinRoom(ctx context.Context, sessionID, lobbyID, roomID, password string) (bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return false, err
	}
	l, err := h.lobbyOrFirst(lobbyID)
	if err != nil {
		return false, err
	}
	r, ok := l.Room(roomID)
	if !ok {
		return false, ErrUnknownRoom
	}
	if cur := h.roomOf(p); cur != nil && cur != r {
		cur.RemovePlayer(ctx, p)
	}
	return r.AddPlayer(ctx, p, password), nil
}

func (h *House) LeaveRoom(ctx context.Context, sessionID string) (bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return false, err
	}
	r, ok := h.currentRoom(p)
	if !ok {
		return false, nil
	}
	return r.RemovePlayer(ctx, p), nil
}

func (h *House) Sit(ctx context.Context, sessionID string, seat int, money int64) (bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return false, err
	}
	r, ok := h.currentRoom(p)
	if !ok {
		return false, nil
	}
	return r.JoinGame(ctx, p, seat, money), nil
}

func (h *House) Stand(ctx context.Context, sessionID string) (bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return false, err
	}
	r, ok := h.currentRoom(p)
	if !ok {
		return false, nil
	}
	return r.LeaveGame(ctx, p), nil
}

func (h *House) Ready(sessionID string, ready bool) (bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return false, err
	}
	r, ok := h.currentRoom(p)
	if !ok {
		return false, nil
	}
	return r.Ready(p, ready), nil
}

func (h *House) Act(sessionID, action string, amount int64) (bool, error) {
	p, err := h.player(sessionID)
	if err != nil {
		return false, err
	}
	r, ok := h.currentRoom(p)
	if !ok {
		return false, nil
	}
	return r.Action(p, action, amount), nil
}
