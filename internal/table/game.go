// Package table implements the turn-based game state machine and the room that
// owns it.
//
// A Game is not safe for concurrent use on its own. Its Room serialises every
// call with one mutex, and the game's timers take the same mutex before they
// fire, so a command and a timeout never interleave.
package table

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"game-house/internal/config"
	"game-house/internal/protocol"
	"game-house/internal/session"
	"game-house/internal/timer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const NoSeat = session.NoSeat

// OpenSeatLimit bounds explicit seat numbers on tables without max_seats.
const OpenSeatLimit = 1024

type GameOption func(*Game)

func WithRules(r Rules) GameOption {
	return func(g *Game) { g.rules = r }
}

// WithNotify routes game events. By default they go to the seated players.
func WithNotify(fn func(event string, data any)) GameOption {
	return func(g *Game) { g.notify = fn }
}

func WithLogger(l zerolog.Logger) GameOption {
	return func(g *Game) { g.log = l }
}

type Game struct {
	id     string
	reg    *timer.Registry
	locker sync.Locker
	config func() config.GameConfig
	rules  Rules
	notify func(event string, data any)
	log    zerolog.Logger

	seats   map[int]*session.Player
	playing map[int]bool
	ready   map[string]bool

	inProgress    bool
	ended         bool
	finishing     bool
	expired       bool
	paused        bool
	resumingPause bool
	roundIndex    int
	turnSeat      int
	prevTurnSeat  int
	disposed      bool

	turnTimer   *timer.Timer
	gameTimer   *timer.Timer
	roundTimer  *timer.Timer
	resumeTimer *timer.Timer
	winnerTimer *timer.Timer
	readyTimer  *timer.Timer
	rebuy       map[int]*timer.Timer
}

// NewGame creates an idle game. locker must be the lock its callers hold; the
// game's timers acquire it before firing. cfg is read on every decision so
// config reloads apply immediately.
func NewGame(id string, reg *timer.Registry, locker sync.Locker, cfg func() config.GameConfig, opts ...GameOption) *Game {
	g := &Game{
		id:           id,
		reg:          reg,
		locker:       locker,
		config:       cfg,
		seats:        map[int]*session.Player{},
		playing:      map[int]bool{},
		ready:        map[string]bool{},
		rebuy:        map[int]*timer.Timer{},
		turnSeat:     NoSeat,
		prevTurnSeat: NoSeat,
		log:          log.With().Str("game_id", id).Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rules == nil {
		g.rules = RulesFor(cfg().Kind)
	}
	if g.notify == nil {
		g.notify = g.sendToSeated
	}
	g.turnTimer = g.newTimer("turn", g.onTurnTimeout)
	g.gameTimer = g.newTimer("game", g.onGameTimeout)
	g.roundTimer = g.newTimer("round", g.startNextRound)
	g.resumeTimer = g.newTimer("resume", g.unfreeze)
	g.winnerTimer = g.newTimer("winner", g.afterGame)
	g.readyTimer = g.newTimer("ready", g.onReadyCountdown)
	return g
}

func (g *Game) newTimer(name string, fn func()) *timer.Timer {
	return timer.New(g.reg, 0, 1, func(*timer.Timer) { fn() },
		timer.WithName(name), timer.WithLocker(g.locker))
}

// schedule restarts t with delay d. Timers scheduled while the game is paused
// start out paused; a zero delay then fires as soon as the game resumes.
func (g *Game) schedule(t *timer.Timer, d time.Duration) {
	t.Reset()
	if g.paused && d == 0 {
		d = time.Nanosecond
	}
	t.SetDelay(d)
	t.Start()
	if g.paused {
		t.Pause()
	}
}

func (g *Game) ID() string                { return g.id }
func (g *Game) Config() config.GameConfig { return g.config() }
func (g *Game) Rules() Rules              { return g.rules }
func (g *Game) InProgress() bool          { return g.inProgress }
func (g *Game) Ended() bool               { return g.ended }
func (g *Game) Paused() bool              { return g.paused }
func (g *Game) ResumingPause() bool       { return g.resumingPause }
func (g *Game) RoundIndex() int           { return g.roundIndex }
func (g *Game) TurnSeat() int             { return g.turnSeat }
func (g *Game) PreviousTurnSeat() int     { return g.prevTurnSeat }
func (g *Game) SeatedCount() int          { return len(g.seats) }
func (g *Game) IsPlaying(seat int) bool   { return g.playing[seat] }

func (g *Game) IsReady(sessionID string) bool { return g.ready[sessionID] }

func (g *Game) PlayerAt(seat int) (*session.Player, bool) {
	p, ok := g.seats[seat]
	return p, ok
}

// Players returns the seated players ordered by seat.
func (g *Game) Players() []*session.Player {
	seats := g.seatNumbers()
	out := make([]*session.Player, 0, len(seats))
	for _, s := range seats {
		out = append(out, g.seats[s])
	}
	return out
}

func (g *Game) seatNumbers() []int {
	out := make([]int, 0, len(g.seats))
	for s := range g.seats {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func (g *Game) isSeated(p *session.Player) bool {
	seat := p.Place()
	return seat != NoSeat && g.seats[seat] == p
}

// ActiveCount is the number of players still in the running: playing and
// either funded or inside their rebuy grace period.
func (g *Game) ActiveCount() int {
	n := 0
	for seat, p := range g.seats {
		if !g.playing[seat] {
			continue
		}
		if _, waiting := g.rebuy[seat]; waiting || p.MoneyInPlay() > 0 {
			n++
		}
	}
	return n
}

// FindFreeSeat returns the lowest free seat, or NoSeat when the table is full.
func (g *Game) FindFreeSeat() int {
	max := g.config().MaxSeats
	if max <= 0 {
		max = OpenSeatLimit
	}
	for i := 0; i < max; i++ {
		if _, taken := g.seats[i]; !taken {
			return i
		}
	}
	return NoSeat
}

// FindNextSeatWithPlayer scans the occupied seats after from, wrapping around
// once, and returns the first one that passes the filters. from itself is the
// last seat considered. It returns NoSeat when no seat qualifies.
func (g *Game) FindNextSeatWithPlayer(from int, mustPlay, mustHaveFunds bool) int {
	seats := g.seatNumbers()
	start := sort.SearchInts(seats, from+1)
	for i := range seats {
		seat := seats[(start+i)%len(seats)]
		if mustPlay && !g.playing[seat] {
			continue
		}
		if mustHaveFunds && g.seats[seat].MoneyInPlay() <= 0 {
			continue
		}
		return seat
	}
	return NoSeat
}

// validSeat reports whether seat exists at this table. Tables without a seat
// limit still cap explicit seat numbers at OpenSeatLimit.
func validSeat(cfg config.GameConfig, seat int) bool {
	if seat < 0 {
		return false
	}
	if cfg.MaxSeats > 0 {
		return seat < cfg.MaxSeats
	}
	return seat < OpenSeatLimit
}

// AddPlayer seats p with money taken from the user's account. A player already
// seated here tops up instead and gets the join event again to resync.
func (g *Game) AddPlayer(ctx context.Context, p *session.Player, seat int, money int64) bool {
	if g.disposed {
		p.Dialog(protocol.DialogCannotJoin, "game closed")
		return false
	}
	cfg := g.config()
	if g.isSeated(p) {
		return g.topUp(ctx, p, money, cfg)
	}
	if cfg.MaxBuyIn > 0 && money > cfg.MaxBuyIn {
		p.Dialog(protocol.DialogBuyInTooHigh, fmt.Sprintf("max buy-in is %d", cfg.MaxBuyIn))
		return false
	}
	if money < cfg.MinBuyIn {
		p.Dialog(protocol.DialogBuyInTooLow, fmt.Sprintf("min buy-in is %d", cfg.MinBuyIn))
		return false
	}
	if seat == NoSeat {
		seat = g.FindFreeSeat()
		if seat == NoSeat {
			p.Dialog(protocol.DialogNoFreeSeat, "")
			return false
		}
	} else if !validSeat(cfg, seat) {
		p.Dialog(protocol.DialogCannotJoin, fmt.Sprintf("no seat %d", seat))
		return false
	} else if _, taken := g.seats[seat]; taken {
		p.Dialog(protocol.DialogSeatTaken, "")
		return false
	}

	committed := p.Commit(ctx, money)
	if committed < money {
		p.Refund(ctx, committed)
		p.Dialog(protocol.DialogInsufficientFunds, "")
		return false
	}

	g.seats[seat] = p
	p.SetPlace(seat)
	p.SetMoneyInPlay(committed)
	g.log.Info().Str("session_id", p.ID()).Int("seat", seat).Int64("money", committed).Msg("player seated")
	g.notify(protocol.EventPlayerJoinedGame, g.seatView(seat))
	g.refreshStarting()
	return true
}

func (g *Game) topUp(ctx context.Context, p *session.Player, money int64, cfg config.GameConfig) bool {
	if money > 0 {
		if cfg.MaxBuyIn > 0 && p.MoneyInPlay()+money > cfg.MaxBuyIn {
			p.Dialog(protocol.DialogBuyInTooHigh, fmt.Sprintf("max buy-in is %d", cfg.MaxBuyIn))
		} else if committed := p.Commit(ctx, money); committed > 0 {
			g.ChangeMoney(p, committed)
		} else {
			p.Dialog(protocol.DialogInsufficientFunds, "")
		}
	}
	p.Send(protocol.EventPlayerJoinedGame, g.seatView(p.Place()))
	g.refreshStarting()
	return true
}

// RemovePlayer frees p's seat and returns its money in play to the account.
func (g *Game) RemovePlayer(ctx context.Context, p *session.Player) bool {
	if !g.isSeated(p) {
		return false
	}
	seat := p.Place()
	wasTurn := g.inProgress && seat == g.turnSeat

	delete(g.seats, seat)
	delete(g.playing, seat)
	delete(g.ready, p.ID())
	if t, ok := g.rebuy[seat]; ok {
		t.Dispose()
		delete(g.rebuy, seat)
	}
	money := p.MoneyInPlay()
	p.SetMoneyInPlay(0)
	p.SetPlace(NoSeat)
	refunded := p.Refund(ctx, money)
	if refunded < money {
		g.log.Error().Str("session_id", p.ID()).Int64("money", money).Int64("refunded", refunded).Msg("refund incomplete")
	}
	g.log.Info().Str("session_id", p.ID()).Int("seat", seat).Msg("player left game")
	g.notify(protocol.EventPlayerLeftGame, map[string]any{"seat": seat, "session_id": p.ID(), "refunded": refunded})

	if g.inProgress && !g.finishing {
		if g.checkEndGame() {
			g.finishGame()
		} else if wasTurn {
			g.endTurn()
		}
	}
	g.refreshStarting()
	return true
}

// ReadyToStart marks p ready or not for the next game.
func (g *Game) ReadyToStart(p *session.Player, ready bool) bool {
	if g.inProgress {
		p.Dialog(protocol.DialogGameInProgress, "")
		return false
	}
	if !g.isSeated(p) {
		p.Dialog(protocol.DialogNotSeated, "")
		return false
	}
	if ready {
		g.ready[p.ID()] = true
	} else {
		delete(g.ready, p.ID())
	}
	g.broadcastReady()
	g.refreshStarting()
	return true
}

// PlayerConnectionChanged re-evaluates starting conditions after p connected
// or disconnected.
func (g *Game) PlayerConnectionChanged(p *session.Player) {
	if g.isSeated(p) {
		g.refreshStarting()
	}
}

// Action applies a move for the player whose turn it is.
func (g *Game) Action(p *session.Player, action string, amount int64) bool {
	seat, ok := g.checkTurn(p)
	if !ok {
		return false
	}
	endTurn, err := g.rules.Action(g, p, action, amount)
	if err != nil {
		p.Dialog(protocol.DialogInvalidAction, err.Error())
		return false
	}
	g.notify(protocol.EventPlayerAction, map[string]any{
		"seat": seat, "session_id": p.ID(), "action": action, "amount": amount,
	})
	if endTurn && g.inProgress && !g.finishing && g.turnSeat == seat {
		g.endTurn()
	}
	return true
}

// EndTurn passes the turn on without a move.
func (g *Game) EndTurn(p *session.Player) bool {
	if _, ok := g.checkTurn(p); !ok {
		return false
	}
	g.endTurn()
	return true
}

func (g *Game) checkTurn(p *session.Player) (int, bool) {
	if !g.inProgress || g.finishing {
		p.Dialog(protocol.DialogInvalidAction, "no game in progress")
		return NoSeat, false
	}
	if g.paused {
		p.Dialog(protocol.DialogGamePaused, "")
		return NoSeat, false
	}
	if !g.isSeated(p) {
		p.Dialog(protocol.DialogNotSeated, "")
		return NoSeat, false
	}
	seat := p.Place()
	if seat != g.turnSeat {
		p.Dialog(protocol.DialogNotYourTurn, "")
		return NoSeat, false
	}
	return seat, true
}

// ChangeMoney adjusts p's money in play and starts or ends its rebuy grace
// period accordingly.
func (g *Game) ChangeMoney(p *session.Player, delta int64) {
	if !g.isSeated(p) {
		return
	}
	money := p.AddMoney(delta)
	g.notify(protocol.EventMoneyChanged, map[string]any{
		"seat": p.Place(), "session_id": p.ID(), "money": money, "delta": delta,
	})
	g.checkRebuy(p)
}

func (g *Game) checkRebuy(p *session.Player) {
	seat := p.Place()
	t, waiting := g.rebuy[seat]
	if p.MoneyInPlay() > 0 {
		if waiting {
			t.Dispose()
			delete(g.rebuy, seat)
			g.notify(protocol.EventRebuyEnded, map[string]any{"seat": seat, "session_id": p.ID(), "removed": false})
		}
		return
	}
	if waiting || !g.inProgress || g.finishing || !g.playing[seat] {
		return
	}
	t = g.newTimer(fmt.Sprintf("rebuy-%d", seat), func() { g.onRebuyTimeout(seat) })
	g.rebuy[seat] = t
	d := g.config().RebuyTimeout()
	g.notify(protocol.EventRebuyStarted, map[string]any{"seat": seat, "session_id": p.ID(), "timeout_ms": d.Milliseconds()})
	g.schedule(t, d)
}

func (g *Game) onRebuyTimeout(seat int) {
	t, ok := g.rebuy[seat]
	if !ok {
		return
	}
	t.Dispose()
	delete(g.rebuy, seat)
	p, ok := g.seats[seat]
	if !ok {
		return
	}
	g.log.Info().Str("session_id", p.ID()).Int("seat", seat).Msg("rebuy grace period expired")
	g.notify(protocol.EventRebuyEnded, map[string]any{"seat": seat, "session_id": p.ID(), "removed": true})
	g.RemovePlayer(context.Background(), p)
}

// refreshStarting starts the game once enough eligible players are seated and,
// when readiness is required, all of them are ready or the countdown elapsed.
func (g *Game) refreshStarting() {
	if g.disposed || g.inProgress || g.ended || g.paused {
		return
	}
	cfg := g.config()
	eligible := g.eligible()
	if len(eligible) < cfg.MinPlayers() {
		g.readyTimer.Reset()
		return
	}
	if !cfg.RequireReady || g.allReady(eligible) {
		g.startGame()
		return
	}
	if g.readyTimer.Running() || g.readyTimer.Paused() {
		return
	}
	if d := cfg.ReadyCountdown(); d >= 0 {
		g.broadcastReady()
		g.schedule(g.readyTimer, d)
	}
}

func (g *Game) eligible() []*session.Player {
	var out []*session.Player
	for _, p := range g.Players() {
		if p.Connected() && p.MoneyInPlay() > 0 {
			out = append(out, p)
		}
	}
	return out
}

func (g *Game) allReady(players []*session.Player) bool {
	for _, p := range players {
		if !g.ready[p.ID()] {
			return false
		}
	}
	return true
}

func (g *Game) onReadyCountdown() {
	if g.inProgress || g.ended || g.paused {
		return
	}
	if len(g.eligible()) >= g.config().MinPlayers() {
		g.startGame()
	}
}

func (g *Game) startGame() {
	cfg := g.config()
	g.inProgress = true
	g.ended = false
	g.finishing = false
	g.expired = false
	g.roundIndex = 0
	g.turnSeat = NoSeat
	g.prevTurnSeat = NoSeat
	g.ready = map[string]bool{}
	g.readyTimer.Reset()
	g.playing = map[int]bool{}
	for _, p := range g.eligible() {
		g.playing[p.Place()] = true
	}
	g.log.Info().Int("players", len(g.playing)).Msg("game started")
	g.notify(protocol.EventResetGame, g.View())
	if d := cfg.GameTimeout(); d > 0 {
		g.schedule(g.gameTimer, d)
	}
	g.startNextRound()
}

func (g *Game) startNextRound() {
	if !g.inProgress || g.finishing {
		return
	}
	if g.checkEndGame() {
		g.finishGame()
		return
	}
	g.roundIndex++
	g.rules.StartRound(g)
	g.notify(protocol.EventRoundStarted, map[string]any{"round": g.roundIndex})
	first := g.FindNextSeatWithPlayer(g.turnSeat, true, true)
	if first == NoSeat {
		g.finishGame()
		return
	}
	g.startPlayerTurn(first)
}

func (g *Game) startPlayerTurn(seat int) {
	g.prevTurnSeat = g.turnSeat
	g.turnSeat = seat
	d := g.config().TurnTimeout()
	p := g.seats[seat]
	g.notify(protocol.EventChangePlayerTurn, map[string]any{
		"seat": seat, "previous_seat": g.prevTurnSeat, "session_id": p.ID(), "timeout_ms": d.Milliseconds(),
	})
	if d > 0 {
		g.schedule(g.turnTimer, d)
	} else {
		g.turnTimer.Reset()
	}
}

func (g *Game) onTurnTimeout() {
	if !g.inProgress || g.finishing {
		return
	}
	if p, ok := g.seats[g.turnSeat]; ok {
		g.notify(protocol.EventPlayerAction, map[string]any{"seat": g.turnSeat, "session_id": p.ID(), "action": "timeout"})
	}
	g.endTurn()
}

func (g *Game) endTurn() {
	if !g.inProgress || g.finishing {
		return
	}
	g.turnTimer.Reset()
	if g.checkEndGame() || g.rules.CheckEndRound(g) {
		g.endRound()
		return
	}
	next := g.FindNextSeatWithPlayer(g.turnSeat, true, true)
	if next == NoSeat {
		g.endRound()
		return
	}
	g.startPlayerTurn(next)
}

func (g *Game) endRound() {
	g.turnTimer.Reset()
	g.notify(protocol.EventRoundEnded, map[string]any{"round": g.roundIndex})
	if g.checkEndGame() {
		g.finishGame()
		return
	}
	d := g.config().RoundDelay()
	if d < 0 {
		d = 0
	}
	g.schedule(g.roundTimer, d)
}

func (g *Game) checkEndGame() bool {
	if g.ended || g.expired {
		return true
	}
	if limit := g.config().RoundsLimit; limit > 0 && g.roundIndex >= limit {
		return true
	}
	return g.ActiveCount() <= 1
}

func (g *Game) onGameTimeout() {
	if !g.inProgress {
		return
	}
	g.expired = true
	g.finishGame()
}

func (g *Game) finishGame() {
	if !g.inProgress || g.finishing {
		return
	}
	g.finishing = true
	g.turnTimer.Reset()
	g.roundTimer.Reset()
	g.gameTimer.Reset()
	g.rules.FindWinners(g, g.announceWinners)
}

func (g *Game) announceWinners(winners []*session.Player) {
	if g.disposed || !g.inProgress || !g.finishing {
		return
	}
	g.inProgress = false
	g.finishing = false
	g.ended = true
	for seat, t := range g.rebuy {
		t.Dispose()
		delete(g.rebuy, seat)
	}
	views := make([]SeatView, 0, len(winners))
	for _, w := range winners {
		if g.isSeated(w) {
			views = append(views, g.seatView(w.Place()))
		}
	}
	g.log.Info().Int("round", g.roundIndex).Int("winners", len(views)).Msg("game ended")
	g.notify(protocol.EventPlayerWins, map[string]any{"winners": views})
	g.notify(protocol.EventGameEnded, map[string]any{"rounds": g.roundIndex})
	g.playing = map[int]bool{}
	d := g.config().WinnerDelay()
	if d < 0 {
		d = 0
	}
	g.schedule(g.winnerTimer, d)
}

func (g *Game) afterGame() {
	if g.disposed || g.inProgress {
		return
	}
	g.ended = false
	g.expired = false
	g.roundIndex = 0
	g.turnSeat = NoSeat
	g.prevTurnSeat = NoSeat
	g.notify(protocol.EventResetGame, g.View())
	if g.config().AutoRestart {
		g.refreshStarting()
	}
}

// Pause freezes every game timer. Pausing during a resume countdown cancels
// the countdown.
func (g *Game) Pause() bool {
	if g.disposed {
		return false
	}
	if g.paused && !g.resumingPause {
		return false
	}
	if g.resumingPause {
		g.resumingPause = false
		g.resumeTimer.Reset()
	} else {
		g.paused = true
		for _, t := range g.ownedTimers() {
			t.Pause()
		}
	}
	g.log.Info().Msg("game paused")
	g.notify(protocol.EventGamePaused, map[string]any{"game_id": g.id})
	return true
}

// Resume unfreezes the game, either at once or after the configured resume
// countdown, during which the game stays paused.
func (g *Game) Resume() bool {
	if g.disposed || !g.paused || g.resumingPause {
		return false
	}
	d := g.config().ResumeDelay()
	if d <= 0 {
		g.unfreeze()
		return true
	}
	g.resumingPause = true
	g.resumeTimer.Reset()
	g.resumeTimer.SetDelay(d)
	g.resumeTimer.Start()
	g.notify(protocol.EventGameResuming, map[string]any{"game_id": g.id, "delay_ms": d.Milliseconds()})
	return true
}

func (g *Game) unfreeze() {
	if !g.paused {
		return
	}
	g.paused = false
	g.resumingPause = false
	g.log.Info().Msg("game resumed")
	g.notify(protocol.EventGameResumed, map[string]any{"game_id": g.id})
	for _, t := range g.ownedTimers() {
		t.Resume()
	}
	g.refreshStarting()
}

// ownedTimers lists the timers frozen by a pause, rebuy timers by seat.
func (g *Game) ownedTimers() []*timer.Timer {
	out := []*timer.Timer{g.turnTimer, g.gameTimer, g.roundTimer, g.winnerTimer, g.readyTimer}
	seats := make([]int, 0, len(g.rebuy))
	for s := range g.rebuy {
		seats = append(seats, s)
	}
	sort.Ints(seats)
	for _, s := range seats {
		out = append(out, g.rebuy[s])
	}
	return out
}

// Timer returns an owned timer by name, for inspection.
func (g *Game) Timer(name string) (*timer.Timer, bool) {
	for _, t := range append(g.ownedTimers(), g.resumeTimer) {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Dispose stops every timer and returns all money in play.
func (g *Game) Dispose(ctx context.Context) {
	if g.disposed {
		return
	}
	for _, t := range append(g.ownedTimers(), g.resumeTimer) {
		t.Dispose()
	}
	g.rebuy = map[int]*timer.Timer{}
	for _, seat := range g.seatNumbers() {
		p := g.seats[seat]
		money := p.MoneyInPlay()
		p.SetMoneyInPlay(0)
		p.SetPlace(NoSeat)
		if refunded := p.Refund(ctx, money); refunded < money {
			g.log.Error().Str("session_id", p.ID()).Int64("money", money).Int64("refunded", refunded).Msg("refund incomplete")
		}
	}
	g.seats = map[int]*session.Player{}
	g.playing = map[int]bool{}
	g.inProgress = false
	g.disposed = true
	g.log.Debug().Msg("game disposed")
}

func (g *Game) sendToSeated(event string, data any) {
	for _, p := range g.Players() {
		p.Send(event, data)
	}
}

func (g *Game) broadcastReady() {
	ready := make([]string, 0, len(g.ready))
	for id := range g.ready {
		ready = append(ready, id)
	}
	sort.Strings(ready)
	g.notify(protocol.EventReadyStatus, map[string]any{
		"ready":        ready,
		"countdown_ms": g.readyTimer.Remaining().Milliseconds(),
		"counting":     g.readyTimer.Running(),
	})
}
