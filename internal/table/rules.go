package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"game-house/internal/session"

	"github.com/rs/zerolog/log"
)

var ErrInvalidAction = errors.New("table: invalid action")

// Rules is the game-specific part of a Game. Every method is called with the
// room lock held and may use the Game's accessors and ChangeMoney.
type Rules interface {
	StartRound(g *Game)
	// Action applies a move of the player whose turn it is. endTurn tells the
	// game to pass the turn on; an error rejects the move.
	Action(g *Game, p *session.Player, action string, amount int64) (endTurn bool, err error)
	CheckEndRound(g *Game) bool
	// FindWinners settles the game and calls done with the winners. done may
	// be called later, but only while holding the room lock.
	FindWinners(g *Game, done func(winners []*session.Player))
}

// StatefulRules are rules with state of their own that must survive a
// snapshot.
type StatefulRules interface {
	Rules
	ExportState() (json.RawMessage, error)
	ImportState(raw json.RawMessage) error
}

// RulesFor returns fresh rules for a game kind.
func RulesFor(kind string) Rules {
	switch kind {
	case "", KindTurns:
		return NewTurnRules()
	default:
		log.Warn().Str("kind", kind).Msg("unknown game kind, using turn rules")
		return NewTurnRules()
	}
}

const (
	KindTurns = "turns"

	ActionPass  = "pass"
	ActionStake = "stake"
)

// TurnRules is a minimal rule set: each playing seat acts once per round,
// "stake" moves money into a shared pot and "pass" does nothing. When the
// game ends the pot is split between the players holding the most money.
type TurnRules struct {
	pot   int64
	acted map[int]bool
}

func NewTurnRules() *TurnRules {
	return &TurnRules{acted: map[int]bool{}}
}

func (r *TurnRules) Pot() int64 { return r.pot }

func (r *TurnRules) StartRound(*Game) {
	r.acted = map[int]bool{}
}

func (r *TurnRules) Action(g *Game, p *session.Player, action string, amount int64) (bool, error) {
	seat := p.Place()
	switch action {
	case ActionPass:
	case ActionStake:
		if amount <= 0 || amount > p.MoneyInPlay() {
			return false, fmt.Errorf("%w: stake %d of %d", ErrInvalidAction, amount, p.MoneyInPlay())
		}
		r.pot += amount
		g.ChangeMoney(p, -amount)
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	r.acted[seat] = true
	return true, nil
}

func (r *TurnRules) CheckEndRound(g *Game) bool {
	for _, p := range g.Players() {
		seat := p.Place()
		if g.IsPlaying(seat) && p.MoneyInPlay() > 0 && !r.acted[seat] {
			return false
		}
	}
	return true
}

func (r *TurnRules) FindWinners(g *Game, done func([]*session.Player)) {
	var best int64 = -1
	var winners []*session.Player
	for _, p := range g.Players() {
		if !g.IsPlaying(p.Place()) {
			continue
		}
		switch m := p.MoneyInPlay(); {
		case m > best:
			best = m
			winners = []*session.Player{p}
		case m == best:
			winners = append(winners, p)
		}
	}
	if len(winners) > 0 && r.pot > 0 {
		share := r.pot / int64(len(winners))
		rest := r.pot - share*int64(len(winners))
		for i, w := range winners {
			amount := share
			if i == 0 {
				amount += rest
			}
			g.ChangeMoney(w, amount)
		}
		r.pot = 0
	}
	done(winners)
}

type turnRulesState struct {
	Pot   int64 `json:"pot"`
	Acted []int `json:"acted"`
}

func (r *TurnRules) ExportState() (json.RawMessage, error) {
	st := turnRulesState{Pot: r.pot, Acted: []int{}}
	for seat, ok := range r.acted {
		if ok {
			st.Acted = append(st.Acted, seat)
		}
	}
	sort.Ints(st.Acted)
	return json.Marshal(st)
}

func (r *TurnRules) ImportState(raw json.RawMessage) error {
	var st turnRulesState
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("turn rules state: %w", err)
	}
	r.pot = st.Pot
	r.acted = make(map[int]bool, len(st.Acted))
	for _, seat := range st.Acted {
		r.acted[seat] = true
	}
	return nil
}
