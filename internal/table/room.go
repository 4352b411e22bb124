package table

import (
	"context"
	"sync"

	"game-house/internal/config"
	"game-house/internal/protocol"
	"game-house/internal/session"
	"game-house/internal/store"
	"game-house/internal/timer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thoas/go-funk"
)

// RoomInfo is the lobby listing entry of a room.
type RoomInfo struct {
	ID          string `json:"id"`
	LobbyID     string `json:"lobby_id"`
	ConfigID    string `json:"config_id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Private     bool   `json:"private"`
	HasPassword bool   `json:"has_password"`
	Capacity    int    `json:"capacity"`
	Members     int    `json:"members"`
	Seated      int    `json:"seated"`
	MaxSeats    int    `json:"max_seats"`
	FreeSeat    bool   `json:"free_seat"`
	MinBuyIn    int64  `json:"min_buy_in"`
	MaxBuyIn    int64  `json:"max_buy_in"`
	InProgress  bool   `json:"in_progress"`
	Paused      bool   `json:"paused"`
}

type MemberView struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Seat      int    `json:"seat"`
	Connected bool   `json:"connected"`
}

type RoomSnapshot struct {
	Info    RoomInfo     `json:"info"`
	Members []MemberView `json:"members"`
	Game    *GameView    `json:"game,omitempty"`
}

type RoomOption func(*Room)

// WithRulesFactory overrides how the room builds rules for its games.
func WithRulesFactory(fn func(kind string) Rules) RoomOption {
	return func(r *Room) { r.newRules = fn }
}

// Room owns the member roster and, while anybody is in it, one Game. All of
// its methods lock the room, and the game underneath shares that lock.
type Room struct {
	id       string
	lobbyID  string
	ref      config.RoomRef
	catalog  *config.Catalog
	reg      *timer.Registry
	newRules func(kind string) Rules
	log      zerolog.Logger

	mu       sync.Mutex
	members  []*session.Player
	game     *Game
	disposed bool
}

func NewRoom(id, lobbyID string, ref config.RoomRef, catalog *config.Catalog, reg *timer.Registry, opts ...RoomOption) *Room {
	r := &Room{
		id:       id,
		lobbyID:  lobbyID,
		ref:      ref,
		catalog:  catalog,
		reg:      reg,
		newRules: RulesFor,
		log:      log.With().Str("room_id", id).Str("lobby_id", lobbyID).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) ID() string               { return r.id }
func (r *Room) LobbyID() string          { return r.lobbyID }
func (r *Room) Ref() config.RoomRef      { return r.ref }
func (r *Room) ConfigID() string         { return r.ref.ConfigID }
func (r *Room) Catalog() *config.Catalog { return r.catalog }

// Locker is the room lock, shared with the game and its timers.
func (r *Room) Locker() sync.Locker { return &r.mu }

// Config resolves the room's config from the catalog on every call.
func (r *Room) Config() config.RoomConfig {
	cfg, ok := r.catalog.ResolveRoom(r.ref)
	if !ok {
		cfg.ID = r.ref.ConfigID
	}
	return cfg
}

func (r *Room) gameConfig() config.GameConfig { return r.Config().Game }

// Game returns the current game, nil if none. Callers outside the room must
// hold Locker while using it.
func (r *Room) Game() *Game {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game
}

// WithGame runs fn on the current game under the room lock.
func (r *Room) WithGame(fn func(g *Game)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game == nil {
		return false
	}
	fn(r.game)
	return true
}

func (r *Room) ensureGame() *Game {
	if r.game == nil {
		r.game = r.newGame(store.NewPrefixedID("game_"))
		r.log.Debug().Str("game_id", r.game.ID()).Msg("game created")
	}
	return r.game
}

func (r *Room) newGame(id string) *Game {
	kind := r.gameConfig().Kind
	return NewGame(id, r.reg, &r.mu, r.gameConfig,
		WithRules(r.newRules(kind)),
		WithNotify(r.broadcast),
		WithLogger(r.log.With().Str("game_id", id).Str("game_kind", kind).Logger()))
}

func (r *Room) member(p *session.Player) bool {
	for _, m := range r.members {
		if m == p {
			return true
		}
	}
	return false
}

// AddPlayer admits p to the room. The same player joining again, for instance
// after a reconnect, only gets the full snapshot resent.
func (r *Room) AddPlayer(ctx context.Context, p *session.Player, password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		p.Dialog(protocol.DialogCannotJoin, "room closed")
		return false
	}
	if r.member(p) {
		p.Send(protocol.EventRoomSnapshot, r.snapshot())
		return true
	}
	cfg := r.Config()
	if cfg.Private && cfg.Owner != p.UserID() {
		p.Dialog(protocol.DialogRoomPrivate, "")
		return false
	}
	if cfg.Password != "" && password != cfg.Password {
		p.Dialog(protocol.DialogWrongPassword, "")
		return false
	}
	sameUser := funk.Find(r.members, func(m *session.Player) bool { return m.UserID() == p.UserID() })
	if sameUser != nil {
		p.Dialog(protocol.DialogDuplicateSession, "")
		return false
	}
	if cfg.Capacity > 0 && len(r.members) >= cfg.Capacity {
		p.Dialog(protocol.DialogRoomFull, "")
		return false
	}

	r.members = append(r.members, p)
	p.SetRoom(r.lobbyID, r.id)
	r.ensureGame()
	r.log.Info().Str("session_id", p.ID()).Str("user_id", p.UserID()).Msg("player joined room")
	r.broadcast(protocol.EventPlayerJoinedRoom, r.memberView(p))
	p.Send(protocol.EventRoomSnapshot, r.snapshot())
	return true
}

// RemovePlayer takes p out of its seat and the room. The game is dropped once
// the room is empty.
func (r *Room) RemovePlayer(ctx context.Context, p *session.Player) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(ctx, p)
}

func (r *Room) removeLocked(ctx context.Context, p *session.Player) bool {
	if !r.member(p) {
		p.Dialog(protocol.DialogNotInRoom, "")
		return false
	}
	if r.game != nil {
		r.game.RemovePlayer(ctx, p)
	}
	view := r.memberView(p)
	r.members = funk.Filter(r.members, func(m *session.Player) bool { return m != p }).([]*session.Player)
	p.ClearRoom()
	r.log.Info().Str("session_id", p.ID()).Msg("player left room")
	r.broadcast(protocol.EventPlayerLeftRoom, view)
	p.Send(protocol.EventPlayerLeftRoom, view)
	if len(r.members) == 0 && r.game != nil {
		r.game.Dispose(ctx)
		r.game = nil
	}
	return true
}

// JoinGame seats a room member. seat may be NoSeat to take any free seat.
func (r *Room) JoinGame(ctx context.Context, p *session.Player, seat int, money int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.member(p) {
		p.Dialog(protocol.DialogNotInRoom, "")
		return false
	}
	return r.ensureGame().AddPlayer(ctx, p, seat, money)
}

// LeaveGame stands p up; it stays in the room as a visitor.
func (r *Room) LeaveGame(ctx context.Context, p *session.Player) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game == nil || !r.game.RemovePlayer(ctx, p) {
		p.Dialog(protocol.DialogNotSeated, "")
		return false
	}
	return true
}

func (r *Room) Ready(p *session.Player, ready bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game == nil {
		p.Dialog(protocol.DialogNotSeated, "")
		return false
	}
	return r.game.ReadyToStart(p, ready)
}

func (r *Room) Action(p *session.Player, action string, amount int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game == nil {
		p.Dialog(protocol.DialogInvalidAction, "no game")
		return false
	}
	return r.game.Action(p, action, amount)
}

func (r *Room) PlayerDisconnected(p *session.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.member(p) {
		return
	}
	r.broadcast(protocol.EventPlayerDisconnected, r.memberView(p))
	if r.game != nil {
		r.game.PlayerConnectionChanged(p)
	}
}

// PlayerReconnected resends the whole room to p and tells the others.
func (r *Room) PlayerReconnected(p *session.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.member(p) {
		return
	}
	r.broadcast(protocol.EventPlayerReconnected, r.memberView(p))
	p.Send(protocol.EventRoomSnapshot, r.snapshot())
	if r.game != nil {
		r.game.PlayerConnectionChanged(p)
	}
}

func (r *Room) Pause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game != nil && r.game.Pause()
}

func (r *Room) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game != nil && r.game.Resume()
}

func (r *Room) Members() []*session.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Player, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// VisibleTo reports whether userID may see the room in listings.
func (r *Room) VisibleTo(userID string) bool {
	cfg := r.Config()
	return !cfg.Private || cfg.Owner == userID
}

func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *Room) infoLocked() RoomInfo {
	cfg := r.Config()
	info := RoomInfo{
		ID:          r.id,
		LobbyID:     r.lobbyID,
		ConfigID:    r.ref.ConfigID,
		Name:        cfg.Name,
		Kind:        cfg.Game.Kind,
		Private:     cfg.Private,
		HasPassword: cfg.Password != "",
		Capacity:    cfg.Capacity,
		Members:     len(r.members),
		MaxSeats:    cfg.Game.MaxSeats,
		MinBuyIn:    cfg.Game.MinBuyIn,
		MaxBuyIn:    cfg.Game.MaxBuyIn,
		FreeSeat:    true,
	}
	if r.game != nil {
		info.Seated = r.game.SeatedCount()
		info.FreeSeat = r.game.FindFreeSeat() != NoSeat
		info.InProgress = r.game.InProgress()
		info.Paused = r.game.Paused()
	}
	if cfg.Capacity > 0 && len(r.members) >= cfg.Capacity {
		info.FreeSeat = false
	}
	return info
}

func (r *Room) memberView(p *session.Player) MemberView {
	return MemberView{
		SessionID: p.ID(),
		UserID:    p.UserID(),
		Name:      p.Name(),
		Seat:      p.Place(),
		Connected: p.Connected(),
	}
}

func (r *Room) snapshot() RoomSnapshot {
	snap := RoomSnapshot{Info: r.infoLocked(), Members: make([]MemberView, 0, len(r.members))}
	for _, m := range r.members {
		snap.Members = append(snap.Members, r.memberView(m))
	}
	if r.game != nil {
		v := r.game.View()
		snap.Game = &v
	}
	return snap
}

func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Room) broadcast(event string, data any) {
	for _, m := range r.members {
		m.Send(event, data)
	}
}

// Dispose closes the room: the game goes first so seated money is returned,
// then every member is removed.
func (r *Room) Dispose(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	if r.game != nil {
		r.game.Dispose(ctx)
		r.game = nil
	}
	for _, p := range r.members {
		p.ClearRoom()
		p.Send(protocol.EventPlayerLeftRoom, r.memberView(p))
	}
	r.members = nil
	r.disposed = true
	r.log.Debug().Msg("room disposed")
}

// RoomState is the persisted form of a Room.
type RoomState struct {
	ID      string         `json:"id"`
	LobbyID string         `json:"lobby_id"`
	Ref     config.RoomRef `json:"ref"`
	Members []string       `json:"members"`
	Game    *GameState     `json:"game,omitempty"`
}

func (r *Room) Export() (RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RoomState{ID: r.id, LobbyID: r.lobbyID, Ref: r.ref, Members: make([]string, 0, len(r.members))}
	for _, m := range r.members {
		st.Members = append(st.Members, m.ID())
	}
	if r.game != nil {
		gs, err := r.game.Export()
		if err != nil {
			return RoomState{}, err
		}
		st.Game = &gs
	}
	return st, nil
}

// ImportRoom rebuilds a room from a snapshot.
func ImportRoom(st RoomState, catalog *config.Catalog, reg *timer.Registry, lookup PlayerLookup, opts ...RoomOption) (*Room, error) {
	r := NewRoom(st.ID, st.LobbyID, st.Ref, catalog, reg, opts...)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range st.Members {
		p, ok := lookup(id)
		if !ok {
			r.log.Warn().Str("session_id", id).Msg("room member missing from snapshot")
			continue
		}
		r.members = append(r.members, p)
		p.SetRoom(r.lobbyID, r.id)
	}
	if st.Game != nil {
		r.game = r.newGame(st.Game.ID)
		if err := r.game.Import(*st.Game, lookup); err != nil {
			return nil, err
		}
	}
	return r, nil
}
