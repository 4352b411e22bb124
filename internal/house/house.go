// Package house is the top-level aggregate of lobbies and users. It owns
// whole-server pause and resume and the snapshot used to survive restarts.
package house

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"game-house/internal/backend"
	"game-house/internal/config"
	"game-house/internal/lobby"
	"game-house/internal/protocol"
	"game-house/internal/session"
	"game-house/internal/signal"
	"game-house/internal/table"
	"game-house/internal/timer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thoas/go-funk"
)

var (
	ErrUnknownSession  = errors.New("house: unknown session")
	ErrUnknownLobby    = errors.New("house: unknown lobby")
	ErrUnknownRoom     = errors.New("house: unknown room")
	ErrSessionConflict = errors.New("house: session belongs to another user")
	ErrHouseNotEmpty   = errors.New("house: restore needs an empty house")
	ErrStopped         = errors.New("house: stopped")
)

// StateStore is the durable key to blob storage snapshots are written to.
type StateStore interface {
	SaveState(ctx context.Context, name string, data []byte) error
	LoadState(ctx context.Context, name string) ([]byte, error)
}

type House struct {
	catalog *config.Catalog
	reg     *timer.Registry
	states  StateStore
	svc     backend.Service
	opts    []table.RoomOption
	log     zerolog.Logger

	restoring atomic.Bool

	mu       sync.Mutex
	lobbies  []*lobby.Lobby
	users    map[string]*session.User
	sessions map[string]*session.User
	paused   bool
	started  bool
	stopped  bool
	autosave *timer.Timer
	onReload *signal.Listener[*config.Catalog]
}

// New wires a house. svc may be nil, in which case every balance is zero.
func New(catalog *config.Catalog, reg *timer.Registry, states StateStore, svc backend.Service, opts ...table.RoomOption) *House {
	return &House{
		catalog:  catalog,
		reg:      reg,
		states:   states,
		svc:      svc,
		opts:     opts,
		log:      log.With().Str("component", "house").Logger(),
		users:    map[string]*session.User{},
		sessions: map[string]*session.User{},
	}
}

func (h *House) Catalog() *config.Catalog  { return h.catalog }
func (h *House) Registry() *timer.Registry { return h.reg }

// Start builds the lobbies, restoring the last snapshot when the house config
// asks for it, and starts autosaving.
func (h *House) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	hc := h.catalog.House()
	if hc.RestoreOnStart {
		if err := h.Restore(ctx); err != nil && !errors.Is(err, ErrNoSnapshot) {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.syncLobbiesLocked()
	if !h.paused {
		for _, l := range h.lobbies {
			l.Resume()
		}
	}
	h.onReload = h.catalog.OnReload.Connect(func(*config.Catalog) { h.ReloadConfig() })
	if d := hc.Autosave(); d > 0 {
		h.autosave = timer.New(h.reg, d, 0, h.onAutosave, timer.WithName("autosave"))
		h.autosave.Start()
	}
	h.log.Info().
		Str("house", hc.Name).
		Int("lobbies", len(h.lobbies)).
		Dur("autosave", hc.Autosave()).
		Msg("house started")
	return nil
}

func (h *House) onAutosave(*timer.Timer) {
	if err := h.Save(context.Background()); err != nil {
		h.log.Error().Err(err).Msg("autosave failed")
	}
}

// Stop pauses every game, saves and tears everything down. Seated money is
// returned to the backend as the games are disposed, unless the saved
// snapshot is restored on the next start.
func (h *House) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	if h.autosave != nil {
		h.autosave.Dispose()
		h.autosave = nil
	}
	if h.onReload != nil {
		h.catalog.OnReload.Remove(h.onReload)
		h.onReload = nil
	}
	h.mu.Unlock()

	// Games are frozen for the final save without marking the house paused,
	// so a restore resumes them.
	h.mu.Lock()
	for _, l := range h.lobbies {
		l.Pause()
	}
	h.mu.Unlock()
	saveErr := h.Save(ctx)
	if saveErr != nil {
		h.log.Error().Err(saveErr).Msg("final save failed")
	}
	keepMoney := saveErr == nil && h.catalog.House().RestoreOnStart

	h.mu.Lock()
	lobbies := h.lobbies
	users := h.users
	h.lobbies = nil
	h.users = map[string]*session.User{}
	h.sessions = map[string]*session.User{}
	h.mu.Unlock()

	// Money in play stays committed when the snapshot will bring it back.
	if keepMoney {
		for _, u := range users {
			u.SetRestoring(true)
		}
	}
	for _, l := range lobbies {
		l.Dispose(ctx)
	}
	for _, u := range users {
		u.Dispose()
	}
	// The registry driver may be blocked on the house lock in an autosave, so
	// it is shut down without holding it.
	if err := h.reg.Shutdown(); err != nil {
		return errors.Join(saveErr, err)
	}
	h.log.Info().Msg("house stopped")
	return saveErr
}

// Pause halts every game in the house. It reports false when already paused.
func (h *House) Pause() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		return false
	}
	h.paused = true
	n := 0
	for _, l := range h.lobbies {
		n += l.Pause()
	}
	h.log.Info().Int("games", n).Msg("house paused")
	return true
}

func (h *House) Resume() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return false
	}
	h.paused = false
	n := 0
	for _, l := range h.lobbies {
		n += l.Resume()
	}
	h.log.Info().Int("games", n).Msg("house resumed")
	return true
}

func (h *House) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// ReloadConfig creates lobbies and rooms the catalog gained since the last
// call. Rooms read their own config on every access, so nothing else is
// needed for changed values to apply.
func (h *House) ReloadConfig() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.syncLobbiesLocked()
	h.log.Info().Int("catalog_version", h.catalog.Version()).Msg("config reloaded")
}

func (h *House) syncLobbiesLocked() {
	for _, cfg := range h.catalog.Lobbies() {
		if l := h.lobbyLocked(cfg.ID); l != nil {
			if n := l.Sync(cfg); n > 0 {
				h.log.Info().Str("lobby_id", cfg.ID).Int("rooms", n).Msg("rooms added")
			}
			continue
		}
		h.lobbies = append(h.lobbies, lobby.New(cfg, h.catalog, h.reg, h.opts...))
		h.log.Info().Str("lobby_id", cfg.ID).Msg("lobby created")
	}
}

func (h *House) lobbyLocked(id string) *lobby.Lobby {
	for _, l := range h.lobbies {
		if l.ID() == id {
			return l
		}
	}
	return nil
}

func (h *House) Lobby(id string) (*lobby.Lobby, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.lobbyLocked(id)
	return l, l != nil
}

func (h *House) Lobbies() []*lobby.Lobby {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*lobby.Lobby, len(h.lobbies))
	copy(out, h.lobbies)
	return out
}

func (h *House) User(id string) (*session.User, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.users[id]
	return u, ok
}

// Users returns every user ordered by id.
func (h *House) Users() []*session.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usersLocked()
}

func (h *House) usersLocked() []*session.User {
	ids := funk.Keys(h.users).([]string)
	sort.Strings(ids)
	out := make([]*session.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.users[id])
	}
	return out
}

func (h *House) Player(sessionID string) (*session.Player, bool) {
	h.mu.Lock()
	u, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	return u.Player(sessionID)
}

// Connect attaches ch to the session, creating the user on first sight. A
// known session is a reconnect: the same player gets the channel back and its
// room resends everything.
func (h *House) Connect(ctx context.Context, userID, name, sessionID string, ch protocol.Channel) (*session.Player, bool, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, false, ErrStopped
	}
	if owner, ok := h.sessions[sessionID]; ok && owner.ID() != userID {
		h.mu.Unlock()
		return nil, false, ErrSessionConflict
	}
	u, ok := h.users[userID]
	if !ok {
		u = session.NewUser(userID, name, backend.NewAccount(h.svc, userID))
		h.users[userID] = u
	}
	p, reconnected := u.Connect(sessionID, ch)
	h.sessions[sessionID] = u
	room := h.roomOfLocked(p)
	h.mu.Unlock()

	u.RefreshBalance(ctx)
	if reconnected && room != nil {
		room.PlayerReconnected(p)
	}
	h.log.Info().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Bool("reconnected", reconnected).
		Msg("session connected")
	return p, reconnected, nil
}

// Disconnect keeps the player and its seat; only the channel is dropped.
func (h *House) Disconnect(sessionID string) error {
	h.mu.Lock()
	u, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	p, err := u.Disconnect(sessionID)
	if err != nil {
		return err
	}
	if room := h.roomOf(p); room != nil {
		room.PlayerDisconnected(p)
	}
	h.log.Info().Str("session_id", sessionID).Msg("session disconnected")
	return nil
}

// Leave removes the session for good: out of its room, then off its user. The
// user goes away with its last session.
func (h *House) Leave(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	u, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	p, ok := u.Player(sessionID)
	if ok {
		if room := h.roomOf(p); room != nil {
			room.RemovePlayer(ctx, p)
		}
		if ch := p.Detach(); ch != nil {
			_ = ch.Close()
		}
	}
	last := u.RemovePlayer(sessionID)

	h.mu.Lock()
	delete(h.sessions, sessionID)
	if last && h.users[u.ID()] == u {
		delete(h.users, u.ID())
	}
	h.mu.Unlock()
	if last {
		u.Dispose()
	}
	h.log.Info().Str("session_id", sessionID).Bool("user_removed", last).Msg("session left")
	return nil
}

func (h *House) roomOf(p *session.Player) *table.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomOfLocked(p)
}

func (h *House) roomOfLocked(p *session.Player) *table.Room {
	roomID := p.RoomID()
	if roomID == "" {
		return nil
	}
	l := h.lobbyLocked(p.LobbyID())
	if l == nil {
		return nil
	}
	r, _ := l.Room(roomID)
	return r
}
