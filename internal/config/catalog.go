package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"game-house/internal/signal"

	"github.com/rs/zerolog/log"
)

// Seconds converts a config value in seconds to a timer delay. Negative values
// keep meaning "disabled".
func Seconds(v float64) time.Duration {
	if v < 0 {
		return -1
	}
	return time.Duration(v * float64(time.Second))
}

type HouseConfig struct {
	Name           string  `json:"name"`
	StateName      string  `json:"state_name"`
	AutosaveSec    float64 `json:"autosave_sec"`
	RestoreOnStart bool    `json:"restore_on_start"`
}

func (h HouseConfig) Autosave() time.Duration { return Seconds(h.AutosaveSec) }

// GameConfig holds the table rules every Game reads on each access, so a
// catalog reload applies to the next decision the game makes.
type GameConfig struct {
	Kind              string `json:"kind"`
	MaxSeats          int    `json:"max_seats"`
	MinPlayersToStart int    `json:"min_players_to_start"`
	MinBuyIn          int64  `json:"min_buy_in"`
	MaxBuyIn          int64  `json:"max_buy_in"`
	RoundsLimit       int    `json:"rounds_limit"`
	RequireReady      bool   `json:"require_ready"`
	AutoRestart       bool   `json:"auto_restart"`

	TurnTimeoutSec         float64 `json:"turn_timeout_sec"`
	GameTimeoutSec         float64 `json:"game_timeout_sec"`
	RoundDelaySec          float64 `json:"round_delay_sec"`
	ResumeGameCountdownSec float64 `json:"resume_game_countdown_sec"`
	WinnerDelaySec         float64 `json:"winner_delay_sec"`
	RebuyTimeoutSec        float64 `json:"rebuy_timeout_sec"`
	ReadyCountdownSec      float64 `json:"ready_countdown_sec"`
}

func (g GameConfig) TurnTimeout() time.Duration    { return Seconds(g.TurnTimeoutSec) }
func (g GameConfig) GameTimeout() time.Duration    { return Seconds(g.GameTimeoutSec) }
func (g GameConfig) RoundDelay() time.Duration     { return Seconds(g.RoundDelaySec) }
func (g GameConfig) ResumeDelay() time.Duration    { return Seconds(g.ResumeGameCountdownSec) }
func (g GameConfig) WinnerDelay() time.Duration    { return Seconds(g.WinnerDelaySec) }
func (g GameConfig) RebuyTimeout() time.Duration   { return Seconds(g.RebuyTimeoutSec) }
func (g GameConfig) ReadyCountdown() time.Duration { return Seconds(g.ReadyCountdownSec) }

// MinPlayers is min_players_to_start, never below two.
func (g GameConfig) MinPlayers() int {
	if g.MinPlayersToStart < 2 {
		return 2
	}
	return g.MinPlayersToStart
}

type RoomConfig struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Capacity int        `json:"capacity"`
	Password string     `json:"password"`
	Private  bool       `json:"private"`
	Owner    string     `json:"owner"`
	Game     GameConfig `json:"game"`
}

// RoomOverrides are the per-room values layered over a catalog RoomConfig.
type RoomOverrides struct {
	Name     string  `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Private  *bool   `json:"private,omitempty"`
	Owner    string  `json:"owner,omitempty"`
}

// RoomRef points at a catalog room config by id instead of copying it, so
// catalog reloads reach every room derived from it.
type RoomRef struct {
	ConfigID  string        `json:"config_id"`
	Overrides RoomOverrides `json:"overrides"`
}

func (o RoomOverrides) apply(base RoomConfig) RoomConfig {
	if o.Name != "" {
		base.Name = o.Name
	}
	if o.Password != nil {
		base.Password = *o.Password
	}
	if o.Private != nil {
		base.Private = *o.Private
	}
	if o.Owner != "" {
		base.Owner = o.Owner
	}
	return base
}

type LobbyConfig struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Rooms []string `json:"rooms"`
}

type catalogFile struct {
	House   HouseConfig   `json:"house"`
	Lobbies []LobbyConfig `json:"lobbies"`
	Rooms   []RoomConfig  `json:"rooms"`
}

// Catalog is the hot-reloadable set of house, lobby and room configs, keyed by
// id.
type Catalog struct {
	mu      sync.RWMutex
	path    string
	modTime time.Time
	version int
	house   HouseConfig
	lobbies []LobbyConfig
	rooms   map[string]RoomConfig

	OnReload *signal.Signal[*Catalog]
}

func newCatalog() *Catalog {
	return &Catalog{
		rooms:    map[string]RoomConfig{},
		OnReload: signal.New[*Catalog](),
	}
}

// ParseCatalog builds a catalog from JSON.
func ParseCatalog(data []byte) (*Catalog, error) {
	f, err := parseCatalogFile(data)
	if err != nil {
		return nil, err
	}
	c := newCatalog()
	c.apply(f)
	return c, nil
}

// LoadCatalog reads a catalog file and remembers its path for Reload.
func LoadCatalog(path string) (*Catalog, error) {
	raw, info, err := readCatalogFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}
	c.path = path
	c.modTime = info.ModTime()
	return c, nil
}

func DefaultCatalog() *Catalog {
	c := newCatalog()
	game := GameConfig{
		Kind:                   "turns",
		MaxSeats:               4,
		MinPlayersToStart:      2,
		MinBuyIn:               100,
		MaxBuyIn:               5000,
		RoundsLimit:            10,
		AutoRestart:            true,
		TurnTimeoutSec:         30,
		GameTimeoutSec:         -1,
		RoundDelaySec:          2,
		ResumeGameCountdownSec: 3,
		WinnerDelaySec:         5,
		RebuyTimeoutSec:        20,
		ReadyCountdownSec:      10,
	}
	high := game
	high.MinBuyIn = 1000
	high.MaxBuyIn = 50000
	c.apply(catalogFile{
		House: HouseConfig{Name: "house", StateName: "house", AutosaveSec: 60, RestoreOnStart: true},
		Lobbies: []LobbyConfig{
			{ID: "main", Name: "Main", Rooms: []string{"low", "low", "high"}},
		},
		Rooms: []RoomConfig{
			{ID: "low", Name: "Low stakes", Capacity: 12, Game: game},
			{ID: "high", Name: "High stakes", Capacity: 12, Game: high},
		},
	})
	return c
}

// Reload re-reads the catalog file. Rooms pick up the new values on their next
// access; listeners on OnReload run after the swap.
func (c *Catalog) Reload() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		return nil
	}
	raw, info, err := readCatalogFile(path)
	if err != nil {
		return err
	}
	f, err := parseCatalogFile(raw)
	if err != nil {
		return fmt.Errorf("parse catalog %q: %w", path, err)
	}
	c.mu.Lock()
	c.modTime = info.ModTime()
	c.mu.Unlock()
	c.apply(f)
	c.OnReload.Dispatch(c)
	return nil
}

// Watch polls the catalog file and reloads it when it changes.
func (c *Catalog) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.changed() {
					continue
				}
				if err := c.Reload(); err != nil {
					log.Error().Err(err).Str("path", c.path).Msg("catalog reload failed")
					continue
				}
				log.Info().Str("path", c.path).Int("version", c.Version()).Msg("catalog reloaded")
			}
		}
	}()
}

func (c *Catalog) changed() bool {
	c.mu.RLock()
	path, mod := c.path, c.modTime
	c.mu.RUnlock()
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().After(mod)
}

func (c *Catalog) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Catalog) House() HouseConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.house
}

func (c *Catalog) Lobbies() []LobbyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LobbyConfig, len(c.lobbies))
	copy(out, c.lobbies)
	return out
}

func (c *Catalog) Room(id string) (RoomConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.rooms[id]
	return cfg, ok
}

// ResolveRoom returns the catalog config for ref with its overrides applied.
func (c *Catalog) ResolveRoom(ref RoomRef) (RoomConfig, bool) {
	base, ok := c.Room(ref.ConfigID)
	if !ok {
		return RoomConfig{}, false
	}
	return ref.Overrides.apply(base), true
}

// SetRoom adds or replaces a single room config.
func (c *Catalog) SetRoom(cfg RoomConfig) {
	c.mu.Lock()
	c.rooms[cfg.ID] = cfg
	c.version++
	c.mu.Unlock()
}

func (c *Catalog) apply(f catalogFile) {
	rooms := make(map[string]RoomConfig, len(f.Rooms))
	for _, r := range f.Rooms {
		rooms[r.ID] = r
	}
	if f.House.StateName == "" {
		f.House.StateName = "house"
	}
	c.mu.Lock()
	c.house = f.House
	c.lobbies = f.Lobbies
	c.rooms = rooms
	c.version++
	c.mu.Unlock()
}

func readCatalogFile(path string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat catalog %q: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return raw, info, nil
}

func parseCatalogFile(data []byte) (catalogFile, error) {
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return catalogFile{}, err
	}
	seen := map[string]struct{}{}
	for i := range f.Rooms {
		f.Rooms[i].ID = strings.TrimSpace(f.Rooms[i].ID)
		if f.Rooms[i].ID == "" {
			return catalogFile{}, fmt.Errorf("room %d: missing id", i)
		}
		if _, dup := seen[f.Rooms[i].ID]; dup {
			return catalogFile{}, fmt.Errorf("room %q: duplicate id", f.Rooms[i].ID)
		}
		if n := f.Rooms[i].Game.MinPlayersToStart; n != 0 && n < 2 {
			return catalogFile{}, fmt.Errorf("room %q: min_players_to_start %d is below 2", f.Rooms[i].ID, n)
		}
		seen[f.Rooms[i].ID] = struct{}{}
	}
	for _, l := range f.Lobbies {
		if strings.TrimSpace(l.ID) == "" {
			return catalogFile{}, fmt.Errorf("lobby %q: missing id", l.Name)
		}
		for _, roomID := range l.Rooms {
			if _, ok := seen[roomID]; !ok {
				return catalogFile{}, fmt.Errorf("lobby %q: unknown room config %q", l.ID, roomID)
			}
		}
	}
	return f, nil
}
