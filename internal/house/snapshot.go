package house

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"game-house/internal/backend"
	"game-house/internal/config"
	"game-house/internal/lobby"
	"game-house/internal/session"
	"game-house/internal/store"
)

const snapshotVersion = 1

var (
	ErrNoSnapshot      = errors.New("house: no snapshot")
	ErrSnapshotVersion = errors.New("house: unsupported snapshot version")
)

// Snapshot is the whole persisted state of a house.
type Snapshot struct {
	Version int                 `json:"version"`
	SavedAt time.Time           `json:"saved_at"`
	House   config.HouseConfig  `json:"house"`
	Paused  bool                `json:"paused"`
	Lobbies []lobby.State       `json:"lobbies"`
	Users   []session.UserState `json:"users"`
}

// Export captures the house without writing it anywhere.
func (h *House) Export() (Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exportLocked()
}

func (h *House) exportLocked() (Snapshot, error) {
	snap := Snapshot{
		Version: snapshotVersion,
		SavedAt: h.reg.Clock().Now().UTC(),
		House:   h.catalog.House(),
		Paused:  h.paused,
		Lobbies: make([]lobby.State, 0, len(h.lobbies)),
		Users:   []session.UserState{},
	}
	for _, l := range h.lobbies {
		st, err := l.Export()
		if err != nil {
			return Snapshot{}, err
		}
		snap.Lobbies = append(snap.Lobbies, st)
	}
	for _, u := range h.usersLocked() {
		snap.Users = append(snap.Users, u.Export())
	}
	return snap, nil
}

// Save writes the snapshot under the house state name. It does nothing while
// a restore is being replayed.
func (h *House) Save(ctx context.Context) error {
	if h.restoring.Load() {
		h.log.Debug().Msg("save skipped while restoring")
		return nil
	}
	snap, err := h.Export()
	if err != nil {
		return fmt.Errorf("export house: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode house snapshot: %w", err)
	}
	name := snap.House.StateName
	if err := h.states.SaveState(ctx, name, data); err != nil {
		return fmt.Errorf("save house state %q: %w", name, err)
	}
	h.log.Debug().
		Str("state", name).
		Int("bytes", len(data)).
		Int("lobbies", len(snap.Lobbies)).
		Int("users", len(snap.Users)).
		Msg("house saved")
	return nil
}

// Restore loads the saved snapshot into an empty house. Every restored player
// comes back disconnected and keeps its seat until it reconnects or leaves.
func (h *House) Restore(ctx context.Context) error {
	name := h.catalog.House().StateName
	data, err := h.states.LoadState(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		h.log.Info().Str("state", name).Msg("no saved state, starting fresh")
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("load house state %q: %w", name, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode house state %q: %w", name, err)
	}
	return h.Import(snap)
}

// Import applies snap to an empty house.
func (h *House) Import(snap Snapshot) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.users) > 0 || h.hasMembersLocked() {
		return ErrHouseNotEmpty
	}

	h.restoring.Store(true)
	defer h.restoring.Store(false)

	users := make(map[string]*session.User, len(snap.Users))
	sessions := map[string]*session.User{}
	for _, us := range snap.Users {
		u := session.NewUser(us.ID, us.Name, backend.NewAccount(h.svc, us.ID))
		u.SetRestoring(true)
		for _, p := range u.Import(us) {
			sessions[p.ID()] = u
		}
		users[us.ID] = u
	}
	lookup := func(sessionID string) (*session.Player, bool) {
		u, ok := sessions[sessionID]
		if !ok {
			return nil, false
		}
		return u.Player(sessionID)
	}

	lobbies := make([]*lobby.Lobby, 0, len(snap.Lobbies))
	for _, ls := range snap.Lobbies {
		l, err := lobby.Import(ls, h.catalog, h.reg, lookup, h.opts...)
		if err != nil {
			for _, done := range lobbies {
				done.Dispose(context.Background())
			}
			return err
		}
		lobbies = append(lobbies, l)
	}

	for _, l := range h.lobbies {
		l.Dispose(context.Background())
	}
	h.lobbies = lobbies
	h.users = users
	h.sessions = sessions
	h.paused = snap.Paused
	for _, u := range users {
		u.SetRestoring(false)
	}
	h.log.Info().
		Time("saved_at", snap.SavedAt).
		Int("lobbies", len(lobbies)).
		Int("users", len(users)).
		Bool("paused", snap.Paused).
		Msg("house restored")
	return nil
}

func (h *House) hasMembersLocked() bool {
	for _, l := range h.lobbies {
		for _, r := range l.Rooms() {
			if !r.IsEmpty() {
				return true
			}
		}
	}
	return false
}
