package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"game-house/internal/backend"
	"game-house/internal/protocol"
)

var ErrUnknownSession = errors.New("session: unknown session")

// User owns the players of one account, one per session. Disconnected players
// stay addressable by session id until they reconnect or leave.
type User struct {
	id      string
	name    string
	account *backend.Account

	mu           sync.Mutex
	players      map[string]*Player
	order        []string
	disconnected map[string]struct{}
	restoring    bool
	disposed     bool
}

func NewUser(id, name string, account *backend.Account) *User {
	if account == nil {
		account = backend.NewAccount(nil, id)
	}
	return &User{
		id:           id,
		name:         name,
		account:      account,
		players:      map[string]*Player{},
		disconnected: map[string]struct{}{},
	}
}

func (u *User) ID() string                { return u.id }
func (u *User) Name() string              { return u.name }
func (u *User) Account() *backend.Account { return u.account }

// Balance is the available balance outside of any game.
func (u *User) Balance() int64 { return u.account.Balance() }

func (u *User) RefreshBalance(ctx context.Context) int64 {
	if u.Restoring() {
		return u.account.Balance()
	}
	return u.account.Refresh(ctx)
}

func (u *User) Restoring() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.restoring
}

// SetRestoring suppresses backend calls while a snapshot is replayed.
func (u *User) SetRestoring(v bool) {
	u.mu.Lock()
	u.restoring = v
	u.mu.Unlock()
}

// Connect attaches ch to the player of sessionID. An existing player is reused,
// so a reconnecting session gets back the very same Player with its placement.
func (u *User) Connect(sessionID string, ch protocol.Channel) (p *Player, reconnected bool) {
	u.mu.Lock()
	p, reconnected = u.players[sessionID]
	if !reconnected {
		p = newPlayer(sessionID, u)
		u.players[sessionID] = p
		u.order = append(u.order, sessionID)
	}
	delete(u.disconnected, sessionID)
	u.mu.Unlock()

	if prev := p.Attach(ch); prev != nil && prev != ch {
		_ = prev.Close()
	}
	return p, reconnected
}

// Disconnect detaches the session's channel and keeps the player for
// reconnection.
func (u *User) Disconnect(sessionID string) (*Player, error) {
	u.mu.Lock()
	p, ok := u.players[sessionID]
	if ok {
		u.disconnected[sessionID] = struct{}{}
	}
	u.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	p.Detach()
	return p, nil
}

// RemovePlayer forgets a session for good. last reports that the user has no
// players left and should be disposed.
func (u *User) RemovePlayer(sessionID string) (last bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.players[sessionID]
	if !ok {
		return len(u.players) == 0
	}
	delete(u.players, sessionID)
	delete(u.disconnected, sessionID)
	for i, id := range u.order {
		if id == sessionID {
			u.order = append(u.order[:i:i], u.order[i+1:]...)
			break
		}
	}
	p.Detach()
	return len(u.players) == 0
}

func (u *User) Player(sessionID string) (*Player, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.players[sessionID]
	return p, ok
}

// Players returns the players in connection order.
func (u *User) Players() []*Player {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Player, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.players[id])
	}
	return out
}

func (u *User) IsDisconnected(sessionID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.disconnected[sessionID]
	return ok
}

// Disconnected lists disconnected session ids in sorted order.
func (u *User) Disconnected() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return sortedKeys(u.disconnected)
}

// Dispose drops every player. It is a no-op the second time.
func (u *User) Dispose() {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	u.disposed = true
	players := u.players
	u.players = map[string]*Player{}
	u.order = nil
	u.disconnected = map[string]struct{}{}
	u.mu.Unlock()
	for _, p := range players {
		if ch := p.Detach(); ch != nil {
			_ = ch.Close()
		}
	}
}

// UserState is the persisted form of a User.
type UserState struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Balance      int64         `json:"balance"`
	Players      []PlayerState `json:"players"`
	Disconnected []string      `json:"disconnected"`
}

func (u *User) Export() UserState {
	players := u.Players()
	st := UserState{
		ID:           u.id,
		Name:         u.name,
		Balance:      u.account.Balance(),
		Players:      make([]PlayerState, 0, len(players)),
		Disconnected: u.Disconnected(),
	}
	for _, p := range players {
		st.Players = append(st.Players, p.Export())
	}
	return st
}

// Import recreates the players of a saved user. Restored players have no live
// channel, so every one of them is disconnected.
func (u *User) Import(st UserState) []*Player {
	u.account.SetBalance(st.Balance)
	out := make([]*Player, 0, len(st.Players))
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, ps := range st.Players {
		p, ok := u.players[ps.SessionID]
		if !ok {
			p = newPlayer(ps.SessionID, u)
			u.players[ps.SessionID] = p
			u.order = append(u.order, ps.SessionID)
		}
		p.importState(ps)
		u.disconnected[ps.SessionID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
