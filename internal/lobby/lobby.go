// Package lobby groups rooms and matches players to them.
package lobby

import (
	"context"
	"fmt"
	"sync"

	"game-house/internal/config"
	"game-house/internal/protocol"
	"game-house/internal/session"
	"game-house/internal/store"
	"game-house/internal/table"
	"game-house/internal/timer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thoas/go-funk"
)

// Mode says what FindFreeRoom does with the room it picks.
type Mode int

const (
	FindInfo Mode = iota
	FindJoinVisitor
	FindJoinSeat
)

func (m Mode) String() string {
	switch m {
	case FindInfo:
		return "info"
	case FindJoinVisitor:
		return "visitor"
	case FindJoinSeat:
		return "seat"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names produced by Mode.String.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "info", "":
		return FindInfo, true
	case "visitor":
		return FindJoinVisitor, true
	case "seat":
		return FindJoinSeat, true
	}
	return FindInfo, false
}

// Criteria narrows the rooms FindFreeRoom considers. Zero fields match
// anything.
type Criteria struct {
	Kind     string `json:"kind,omitempty"`
	ConfigID string `json:"config_id,omitempty"`
	BuyIn    int64  `json:"buy_in,omitempty"`
}

func (c Criteria) match(info table.RoomInfo) bool {
	if c.Kind != "" && info.Kind != c.Kind {
		return false
	}
	if c.ConfigID != "" && info.ConfigID != c.ConfigID {
		return false
	}
	if c.BuyIn > 0 {
		if c.BuyIn < info.MinBuyIn {
			return false
		}
		if info.MaxBuyIn > 0 && c.BuyIn > info.MaxBuyIn {
			return false
		}
	}
	return true
}

type FindResult struct {
	Room   *table.Room    `json:"-"`
	Info   table.RoomInfo `json:"info"`
	Joined bool           `json:"joined"`
	Seated bool           `json:"seated"`
}

type candidate struct {
	room *table.Room
	info table.RoomInfo
}

// Lobby owns a set of rooms. The lobby lock only guards the room list; room
// calls are made after it is released.
type Lobby struct {
	id      string
	name    string
	catalog *config.Catalog
	reg     *timer.Registry
	opts    []table.RoomOption
	log     zerolog.Logger

	mu    sync.Mutex
	rooms []*table.Room
}

func newLobby(id, name string, catalog *config.Catalog, reg *timer.Registry, opts []table.RoomOption) *Lobby {
	return &Lobby{
		id:      id,
		name:    name,
		catalog: catalog,
		reg:     reg,
		opts:    opts,
		log:     log.With().Str("lobby_id", id).Logger(),
	}
}

// New builds a lobby with one room per entry of cfg.Rooms.
func New(cfg config.LobbyConfig, catalog *config.Catalog, reg *timer.Registry, opts ...table.RoomOption) *Lobby {
	l := newLobby(cfg.ID, cfg.Name, catalog, reg, opts)
	for _, configID := range cfg.Rooms {
		l.CreateRoom(config.RoomRef{ConfigID: configID})
	}
	return l
}

func (l *Lobby) ID() string   { return l.id }
func (l *Lobby) Name() string { return l.name }

func (l *Lobby) CreateRoom(ref config.RoomRef) *table.Room {
	r := table.NewRoom(store.NewPrefixedID("room_"), l.id, ref, l.catalog, l.reg, l.opts...)
	l.mu.Lock()
	l.rooms = append(l.rooms, r)
	l.mu.Unlock()
	l.log.Debug().Str("room_id", r.ID()).Str("config_id", ref.ConfigID).Msg("room created")
	return r
}

// Sync creates rooms for catalog entries of cfg that have fewer rooms than
// listed. Existing rooms are never dropped.
func (l *Lobby) Sync(cfg config.LobbyConfig) int {
	want := map[string]int{}
	for _, id := range cfg.Rooms {
		want[id]++
	}
	for _, r := range l.Rooms() {
		want[r.ConfigID()]--
	}
	created := 0
	for _, id := range cfg.Rooms {
		if want[id] > 0 {
			want[id]--
			l.CreateRoom(config.RoomRef{ConfigID: id})
			created++
		}
	}
	return created
}

// RemoveRoom disposes the room, returning seated money to its players.
func (l *Lobby) RemoveRoom(ctx context.Context, id string) bool {
	l.mu.Lock()
	var removed *table.Room
	kept := l.rooms[:0]
	for _, r := range l.rooms {
		if r.ID() == id {
			removed = r
			continue
		}
		kept = append(kept, r)
	}
	l.rooms = kept
	l.mu.Unlock()
	if removed == nil {
		return false
	}
	removed.Dispose(ctx)
	l.log.Info().Str("room_id", id).Msg("room removed")
	return true
}

func (l *Lobby) Room(id string) (*table.Room, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := funk.Find(l.rooms, func(r *table.Room) bool { return r.ID() == id })
	if r == nil {
		return nil, false
	}
	return r.(*table.Room), true
}

func (l *Lobby) Rooms() []*table.Room {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*table.Room, len(l.rooms))
	copy(out, l.rooms)
	return out
}

// Infos lists the rooms viewer may see.
func (l *Lobby) Infos(viewer string) []table.RoomInfo {
	out := []table.RoomInfo{}
	for _, r := range l.Rooms() {
		if r.VisibleTo(viewer) {
			out = append(out, r.Info())
		}
	}
	return out
}

// FindFreeRoom picks a room for p and, depending on mode, joins it. Rooms with
// a password or hidden from p are never picked. It prefers an occupied room
// with a free seat, then the first empty room p can fund, and last a full
// room, which is only reported and never joined.
func (l *Lobby) FindFreeRoom(ctx context.Context, p *session.Player, mode Mode, criteria Criteria) (FindResult, bool) {
	var cands []candidate
	for _, r := range l.Rooms() {
		if !r.VisibleTo(p.UserID()) {
			continue
		}
		info := r.Info()
		if info.HasPassword || !criteria.match(info) {
			continue
		}
		cands = append(cands, candidate{room: r, info: info})
	}
	balance := p.User().Balance()

	pick := funk.Find(cands, func(c candidate) bool {
		return c.info.Members > 0 && c.info.FreeSeat
	})
	if pick == nil {
		pick = funk.Find(cands, func(c candidate) bool {
			return c.info.Members == 0 && c.info.FreeSeat && balance >= buyIn(c.info, criteria)
		})
	}
	if pick == nil {
		full := funk.Find(cands, func(c candidate) bool { return !c.info.FreeSeat })
		if full == nil {
			p.Dialog(protocol.DialogNoRoom, "")
			return FindResult{}, false
		}
		c := full.(candidate)
		return FindResult{Room: c.room, Info: c.info}, true
	}

	c := pick.(candidate)
	res := FindResult{Room: c.room, Info: c.info}
	if mode == FindInfo {
		return res, true
	}
	if !c.room.AddPlayer(ctx, p, "") {
		return res, true
	}
	res.Joined = true
	if mode == FindJoinSeat {
		res.Seated = c.room.JoinGame(ctx, p, table.NoSeat, buyIn(c.info, criteria))
	}
	res.Info = c.room.Info()
	l.log.Debug().
		Str("session_id", p.ID()).
		Str("room_id", c.room.ID()).
		Str("mode", mode.String()).
		Bool("seated", res.Seated).
		Msg("room found")
	return res, true
}

func buyIn(info table.RoomInfo, criteria Criteria) int64 {
	if criteria.BuyIn > 0 {
		return criteria.BuyIn
	}
	return info.MinBuyIn
}

func (l *Lobby) Pause() int {
	n := 0
	for _, r := range l.Rooms() {
		if r.Pause() {
			n++
		}
	}
	return n
}

func (l *Lobby) Resume() int {
	n := 0
	for _, r := range l.Rooms() {
		if r.Resume() {
			n++
		}
	}
	return n
}

func (l *Lobby) Dispose(ctx context.Context) {
	l.mu.Lock()
	rooms := l.rooms
	l.rooms = nil
	l.mu.Unlock()
	for _, r := range rooms {
		r.Dispose(ctx)
	}
}

// State is the persisted form of a Lobby.
type State struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Rooms []table.RoomState `json:"rooms"`
}

func (l *Lobby) Export() (State, error) {
	st := State{ID: l.id, Name: l.name, Rooms: []table.RoomState{}}
	for _, r := range l.Rooms() {
		rs, err := r.Export()
		if err != nil {
			return State{}, fmt.Errorf("export lobby %s: %w", l.id, err)
		}
		st.Rooms = append(st.Rooms, rs)
	}
	return st, nil
}

// Import rebuilds a lobby and its rooms from a snapshot.
func Import(st State, catalog *config.Catalog, reg *timer.Registry, lookup table.PlayerLookup, opts ...table.RoomOption) (*Lobby, error) {
	l := newLobby(st.ID, st.Name, catalog, reg, opts)
	for _, rs := range st.Rooms {
		r, err := table.ImportRoom(rs, catalog, reg, lookup, opts...)
		if err != nil {
			return nil, fmt.Errorf("import lobby %s: %w", st.ID, err)
		}
		l.rooms = append(l.rooms, r)
	}
	return l, nil
}
