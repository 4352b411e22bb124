package table

import (
	"encoding/json"
	"fmt"
	"sort"

	"game-house/internal/session"
	"game-house/internal/timer"
)

// GameState is the persisted form of a Game, timers included.
type GameState struct {
	ID            string                 `json:"id"`
	InProgress    bool                   `json:"in_progress"`
	Ended         bool                   `json:"ended"`
	Finishing     bool                   `json:"finishing"`
	Expired       bool                   `json:"expired"`
	Paused        bool                   `json:"paused"`
	ResumingPause bool                   `json:"resuming_pause"`
	RoundIndex    int                    `json:"round_index"`
	TurnSeat      int                    `json:"turn_seat"`
	PrevTurnSeat  int                    `json:"previous_turn_seat"`
	Seats         []SeatState            `json:"seats"`
	Ready         []string               `json:"ready"`
	Timers        map[string]timer.State `json:"timers"`
	Rebuy         map[int]timer.State    `json:"rebuy"`
	Rules         json.RawMessage        `json:"rules,omitempty"`
}

type SeatState struct {
	Seat      int    `json:"seat"`
	SessionID string `json:"session_id"`
	Playing   bool   `json:"playing"`
}

// PlayerLookup resolves a session id to a restored player.
type PlayerLookup func(sessionID string) (*session.Player, bool)

func (g *Game) Export() (GameState, error) {
	st := GameState{
		ID:            g.id,
		InProgress:    g.inProgress,
		Ended:         g.ended,
		Finishing:     g.finishing,
		Expired:       g.expired,
		Paused:        g.paused,
		ResumingPause: g.resumingPause,
		RoundIndex:    g.roundIndex,
		TurnSeat:      g.turnSeat,
		PrevTurnSeat:  g.prevTurnSeat,
		Seats:         []SeatState{},
		Ready:         []string{},
		Timers:        map[string]timer.State{},
		Rebuy:         map[int]timer.State{},
	}
	for _, seat := range g.seatNumbers() {
		st.Seats = append(st.Seats, SeatState{Seat: seat, SessionID: g.seats[seat].ID(), Playing: g.playing[seat]})
	}
	for id := range g.ready {
		st.Ready = append(st.Ready, id)
	}
	sort.Strings(st.Ready)
	for _, t := range []*timer.Timer{g.turnTimer, g.gameTimer, g.roundTimer, g.resumeTimer, g.winnerTimer, g.readyTimer} {
		st.Timers[t.Name()] = t.Export()
	}
	for seat, t := range g.rebuy {
		st.Rebuy[seat] = t.Export()
	}
	if sr, ok := g.rules.(StatefulRules); ok {
		raw, err := sr.ExportState()
		if err != nil {
			return GameState{}, fmt.Errorf("export rules of game %s: %w", g.id, err)
		}
		st.Rules = raw
	}
	return st, nil
}

// Import replaces the game's state with st. Seated players are resolved with
// lookup; running timers continue from their saved elapsed time.
func (g *Game) Import(st GameState, lookup PlayerLookup) error {
	for _, t := range g.ownedTimers() {
		t.Reset()
	}
	for _, t := range g.rebuy {
		t.Dispose()
	}
	g.resumeTimer.Reset()

	g.inProgress = st.InProgress
	g.ended = st.Ended
	g.expired = st.Expired
	g.paused = st.Paused
	g.resumingPause = st.ResumingPause
	g.roundIndex = st.RoundIndex
	g.turnSeat = st.TurnSeat
	g.prevTurnSeat = st.PrevTurnSeat

	g.seats = map[int]*session.Player{}
	g.playing = map[int]bool{}
	for _, ss := range st.Seats {
		p, ok := lookup(ss.SessionID)
		if !ok {
			g.log.Warn().Str("session_id", ss.SessionID).Int("seat", ss.Seat).Msg("seated player missing from snapshot")
			continue
		}
		g.seats[ss.Seat] = p
		p.SetPlace(ss.Seat)
		if ss.Playing {
			g.playing[ss.Seat] = true
		}
	}
	g.ready = map[string]bool{}
	for _, id := range st.Ready {
		g.ready[id] = true
	}

	for _, t := range []*timer.Timer{g.turnTimer, g.gameTimer, g.roundTimer, g.resumeTimer, g.winnerTimer, g.readyTimer} {
		if ts, ok := st.Timers[t.Name()]; ok {
			t.Import(ts)
		}
	}
	g.rebuy = map[int]*timer.Timer{}
	for seat, ts := range st.Rebuy {
		seat := seat
		t := g.newTimer(fmt.Sprintf("rebuy-%d", seat), func() { g.onRebuyTimeout(seat) })
		t.Import(ts)
		g.rebuy[seat] = t
	}

	if sr, ok := g.rules.(StatefulRules); ok && len(st.Rules) > 0 {
		if err := sr.ImportState(st.Rules); err != nil {
			return fmt.Errorf("import rules of game %s: %w", g.id, err)
		}
	}

	// A winner lookup in flight when the snapshot was taken is started again.
	g.finishing = false
	if st.Finishing {
		g.finishGame()
	}
	return nil
}
