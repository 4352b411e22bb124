package table

import (
	"context"
	"testing"
	"time"

	"game-house/internal/protocol"
	"game-house/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameStartsWhenMinimumSeated(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	ctx := context.Background()
	p1, b1 := h.player("u1")
	p2, _ := h.player("u2")

	require.True(t, g.AddPlayer(ctx, p1, NoSeat, 1000))
	assert.False(t, g.InProgress())
	assert.Equal(t, 0, b1.Count(protocol.EventResetGame))

	require.True(t, g.AddPlayer(ctx, p2, NoSeat, 1000))
	assert.True(t, g.InProgress())
	assert.Equal(t, 1, b1.Count(protocol.EventResetGame))
	assert.Equal(t, 1, g.RoundIndex())
	assert.Equal(t, 0, g.TurnSeat())
}

func TestDisconnectedPlayerDoesNotStartGame(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	ctx := context.Background()
	p1, _ := h.player("u1")
	p2, _ := h.player("u2")
	p2.Detach()

	g.AddPlayer(ctx, p1, NoSeat, 1000)
	g.AddPlayer(ctx, p2, NoSeat, 1000)
	assert.False(t, g.InProgress())

	p2.Attach(protocol.NewBuffer("u2-s", 10))
	g.PlayerConnectionChanged(p2)
	assert.True(t, g.InProgress())
}

func TestRemovePlayerReturnsMoney(t *testing.T) {
	h := newHarness(t)
	g := h.newGame()
	ctx := context.Background()
	p, _ := h.player("u1")

	require.True(t, g.AddPlayer(ctx, p, NoSeat, 1000))
	assert.Equal(t, int64(4000), p.User().Balance())
	assert.Equal(t, int64(1000), p.MoneyInPlay())

	require.True(t, g.RemovePlayer(ctx, p))
	assert.Equal(t, int64(0), p.MoneyInPlay())
	assert.Equal(t, int64(5000), p.User().Balance())
	assert.Equal(t, NoSeat, p.Place())
	assert.False(t, g.RemovePlayer(ctx, p))
}

func TestSeatLimitsAndDialogs(t *testing.T) {
	h := newHarness(t)
	h.cfg.MinPlayersToStart = 3
	g := h.newGame()
	ctx := context.Background()
	p1, _ := h.player("u1")
	p2, b2 := h.player("u2")
	p3, b3 := h.player("u3")

	require.True(t, g.AddPlayer(ctx, p1, 1, 500))
	assert.False(t, g.AddPlayer(ctx, p2, 1, 500))
	assert.Equal(t, protocol.DialogSeatTaken, lastDialog(b2))
	assert.False(t, g.AddPlayer(ctx, p2, 7, 500))
	assert.Equal(t, protocol.DialogCannotJoin, lastDialog(b2))
	assert.False(t, g.AddPlayer(ctx, p2, NoSeat, 6000))
	assert.Equal(t, protocol.DialogBuyInTooHigh, lastDialog(b2))
	assert.False(t, g.AddPlayer(ctx, p2, NoSeat, 50))
	assert.Equal(t, protocol.DialogBuyInTooLow, lastDialog(b2))

	require.True(t, g.AddPlayer(ctx, p2, NoSeat, 500))
	assert.Equal(t, 0, p2.Place())
	assert.False(t, g.AddPlayer(ctx, p3, NoSeat, 500))
	assert.Equal(t, protocol.DialogNoFreeSeat, lastDialog(b3))

	seen := map[int]bool{}
	for _, p := range g.Players() {
		assert.False(t, seen[p.Place()])
		seen[p.Place()] = true
	}
	assert.LessOrEqual(t, g.SeatedCount(), h.cfg.MaxSeats)
}

func TestInsufficientFundsRejectsJoin(t *testing.T) {
	h := newHarness(t)
	h.svc.Set("poor", 50)
	g := h.newGame()
	p, buf := h.player("poor")

	assert.False(t, g.AddPlayer(context.Background(), p, NoSeat, 100))
	assert.Equal(t, protocol.DialogInsufficientFunds, lastDialog(buf))
	assert.Equal(t, NoSeat, p.Place())
	assert.Equal(t, int64(50), p.User().Balance())
}

func TestTopUpResyncsSeatedPlayer(t *testing.T) {
	h := newHarness(t)
	h.cfg.MinPlayersToStart = 3
	g := h.newGame()
	ctx := context.Background()
	p, buf := h.player("u1")

	require.True(t, g.AddPlayer(ctx, p, NoSeat, 500))
	require.True(t, g.AddPlayer(ctx, p, NoSeat, 300))
	assert.Equal(t, int64(800), p.MoneyInPlay())
	assert.Equal(t, 2, buf.Count(protocol.EventPlayerJoinedGame))
	assert.Equal(t, 1, g.SeatedCount())

	require.True(t, g.AddPlayer(ctx, p, NoSeat, 5000))
	assert.Equal(t, protocol.DialogBuyInTooHigh, lastDialog(buf))
	assert.Equal(t, int64(800), p.MoneyInPlay())
}

func TestFindNextSeatWithPlayerWrapsOnce(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxSeats = 0
	h.cfg.MinPlayersToStart = 10
	g := h.newGame()
	ctx := context.Background()
	p1, _ := h.player("u1")
	p2, _ := h.player("u2")

	require.True(t, g.AddPlayer(ctx, p1, 0, 500))
	require.True(t, g.AddPlayer(ctx, p2, 3, 500))

	assert.Equal(t, 3, g.FindNextSeatWithPlayer(0, false, false))
	assert.Equal(t, 0, g.FindNextSeatWithPlayer(3, false, false))
	assert.Equal(t, 0, g.FindNextSeatWithPlayer(NoSeat, false, false))
	assert.Equal(t, NoSeat, g.FindNextSeatWithPlayer(0, true, false))

	p1.SetMoneyInPlay(0)
	assert.Equal(t, 3, g.FindNextSeatWithPlayer(3, false, true))
	p2.SetMoneyInPlay(0)
	assert.Equal(t, NoSeat, g.FindNextSeatWithPlayer(3, false, true))
	assert.Equal(t, 1, g.FindFreeSeat())
}

func TestOpenTableCapsExplicitSeats(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxSeats = 0
	g := h.newGame()
	ctx := context.Background()
	p, buf := h.player("u1")

	assert.False(t, g.AddPlayer(ctx, p, 1<<40, 500))
	assert.Equal(t, protocol.DialogCannotJoin, lastDialog(buf))
	assert.False(t, g.AddPlayer(ctx, p, OpenSeatLimit, 500))
	assert.Equal(t, int64(5000), p.User().Balance())

	require.True(t, g.AddPlayer(ctx, p, OpenSeatLimit-1, 500))
	assert.Equal(t, OpenSeatLimit-1, p.Place())
	assert.Equal(t, OpenSeatLimit-1, g.FindNextSeatWithPlayer(OpenSeatLimit-1, false, false))
	assert.Equal(t, 0, g.FindFreeSeat())
}

func TestOpenTableSparseSeatsTakeTurns(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxSeats = 0
	h.cfg.MinPlayersToStart = 3
	g := h.newGame()
	ctx := context.Background()
	p1, _ := h.player("u1")
	p2, _ := h.player("u2")
	p3, b3 := h.player("u3")

	require.True(t, g.AddPlayer(ctx, p1, 2, 500))
	require.True(t, g.AddPlayer(ctx, p2, 500, 500))
	require.True(t, g.AddPlayer(ctx, p3, 1000, 500))
	require.True(t, g.InProgress())
	assert.Equal(t, 2, g.TurnSeat())

	require.True(t, g.Action(p1, ActionPass, 0))
	assert.Equal(t, 500, g.TurnSeat())
	require.True(t, g.Action(p2, ActionStake, 100))
	assert.Equal(t, 1000, g.TurnSeat())
	require.True(t, g.Action(p3, ActionPass, 0))
	assert.Equal(t, 1, b3.Count(protocol.EventRoundEnded))

	h.advance(time.Second)
	assert.Equal(t, 2, g.RoundIndex())
	assert.Equal(t, 2, g.TurnSeat())
	assert.Equal(t, 1000, g.PreviousTurnSeat())
}

func startedGame(t *testing.T, h *harness) (*Game, *session.Player, *session.Player, *protocol.Buffer, *protocol.Buffer) {
	t.Helper()
	g := h.newGame()
	ctx := context.Background()
	p1, b1 := h.player("u1")
	p2, b2 := h.player("u2")
	require.True(t, g.AddPlayer(ctx, p1, NoSeat, 1000))
	require.True(t, g.AddPlayer(ctx, p2, NoSeat, 1000))
	require.True(t, g.InProgress())
	return g, p1, p2, b1, b2
}

func TestTurnOrderAndRounds(t *testing.T) {
	h := newHarness(t)
	g, p1, p2, _, b2 := startedGame(t, h)

	assert.False(t, g.Action(p2, ActionPass, 0))
	assert.Equal(t, protocol.DialogNotYourTurn, lastDialog(b2))

	require.True(t, g.Action(p1, ActionStake, 100))
	assert.Equal(t, int64(900), p1.MoneyInPlay())
	assert.Equal(t, 1, g.TurnSeat())
	assert.Equal(t, 0, g.PreviousTurnSeat())

	require.True(t, g.Action(p2, ActionPass, 0))
	assert.Equal(t, 1, b2.Count(protocol.EventRoundEnded))

	h.advance(time.Second)
	assert.Equal(t, 2, g.RoundIndex())
	assert.Equal(t, 0, g.TurnSeat())

	assert.False(t, g.Action(p1, "dance", 0))
	assert.Equal(t, 0, g.TurnSeat())
}

func TestTurnTimeoutPassesTurn(t *testing.T) {
	h := newHarness(t)
	g, _, _, b1, _ := startedGame(t, h)

	h.advance(9 * time.Second)
	assert.Equal(t, 0, g.TurnSeat())
	h.advance(time.Second)
	assert.Equal(t, 1, g.TurnSeat())
	ev, ok := b1.Last(protocol.EventPlayerAction)
	require.True(t, ok)
	assert.Equal(t, "timeout", ev.Data.(map[string]any)["action"])
}

func TestRoundsLimitEndsGameAndPaysPot(t *testing.T) {
	h := newHarness(t)
	h.cfg.RoundsLimit = 1
	g, p1, p2, b1, _ := startedGame(t, h)

	require.True(t, g.Action(p1, ActionStake, 200))
	require.True(t, g.Action(p2, ActionPass, 0))

	assert.False(t, g.InProgress())
	assert.True(t, g.Ended())
	assert.Equal(t, int64(800), p1.MoneyInPlay())
	assert.Equal(t, int64(1200), p2.MoneyInPlay())
	assert.Equal(t, 1, b1.Count(protocol.EventPlayerWins))
	assert.Equal(t, 1, b1.Count(protocol.EventGameEnded))

	// Without auto restart the table goes idle after the winner display.
	h.advance(2 * time.Second)
	assert.False(t, g.Ended())
	assert.False(t, g.InProgress())
	assert.Equal(t, 0, g.RoundIndex())
}

func TestAutoRestartStartsNextGame(t *testing.T) {
	h := newHarness(t)
	h.cfg.RoundsLimit = 1
	h.cfg.AutoRestart = true
	g, p1, p2, b1, _ := startedGame(t, h)

	g.Action(p1, ActionPass, 0)
	g.Action(p2, ActionPass, 0)
	require.True(t, g.Ended())

	h.advance(2 * time.Second)
	assert.True(t, g.InProgress())
	assert.Equal(t, 1, b1.Count(protocol.EventGameEnded))
	assert.Equal(t, 3, b1.Count(protocol.EventResetGame))
}

func TestRebuyGracePeriodRemovesBrokePlayer(t *testing.T) {
	h := newHarness(t)
	g, p1, p2, b1, _ := startedGame(t, h)

	require.True(t, g.Action(p1, ActionStake, 1000))
	assert.Equal(t, int64(0), p1.MoneyInPlay())
	assert.Equal(t, 1, b1.Count(protocol.EventRebuyStarted))
	assert.True(t, g.InProgress())
	assert.Equal(t, 2, g.ActiveCount())
	_, ok := g.Timer("rebuy-0")
	assert.True(t, ok)

	h.advance(5 * time.Second)
	assert.Equal(t, NoSeat, p1.Place())
	assert.False(t, g.InProgress())
	assert.Equal(t, int64(2000), p2.MoneyInPlay())
	assert.Equal(t, int64(4000), p1.User().Balance())
}

func TestRebuyCancelledByTopUp(t *testing.T) {
	h := newHarness(t)
	g, p1, _, b1, _ := startedGame(t, h)

	require.True(t, g.Action(p1, ActionStake, 1000))
	require.True(t, g.AddPlayer(context.Background(), p1, NoSeat, 300))
	assert.Equal(t, int64(300), p1.MoneyInPlay())
	assert.Equal(t, 1, b1.Count(protocol.EventRebuyEnded))
	_, ok := g.Timer("rebuy-0")
	assert.False(t, ok)

	h.advance(5 * time.Second)
	assert.Equal(t, 0, p1.Place())
	assert.True(t, g.InProgress())
}

func TestPauseFreezesTimersAndResumeCountdown(t *testing.T) {
	h := newHarness(t)
	h.cfg.ResumeGameCountdownSec = 0.1
	g, p1, _, b1, _ := startedGame(t, h)

	h.advance(3 * time.Second)
	turn, _ := g.Timer("turn")
	require.True(t, g.Pause())
	assert.False(t, g.Pause())
	assert.Equal(t, 3*time.Second, turn.Elapsed())

	h.advance(time.Minute)
	assert.Equal(t, 3*time.Second, turn.Elapsed())
	assert.False(t, g.Action(p1, ActionPass, 0))
	assert.Equal(t, protocol.DialogGamePaused, lastDialog(b1))

	require.True(t, g.Resume())
	assert.True(t, g.Paused())
	assert.True(t, g.ResumingPause())
	assert.Equal(t, 1, b1.Count(protocol.EventGameResuming))

	h.advance(100 * time.Millisecond)
	assert.False(t, g.Paused())
	assert.False(t, g.ResumingPause())
	assert.True(t, turn.Running())
	assert.Equal(t, 3*time.Second, turn.Elapsed())

	h.advance(7 * time.Second)
	assert.Equal(t, 1, g.TurnSeat())
}

func TestPauseDuringResumeCountdownCancelsIt(t *testing.T) {
	h := newHarness(t)
	h.cfg.ResumeGameCountdownSec = 1
	g, _, _, _, _ := startedGame(t, h)

	require.True(t, g.Pause())
	require.True(t, g.Resume())
	require.True(t, g.Pause())
	h.advance(2 * time.Second)
	assert.True(t, g.Paused())
	assert.False(t, g.ResumingPause())
}

func TestReadyCheckStartsWhenAllReady(t *testing.T) {
	h := newHarness(t)
	h.cfg.RequireReady = true
	g := h.newGame()
	ctx := context.Background()
	p1, b1 := h.player("u1")
	p2, _ := h.player("u2")

	require.True(t, g.AddPlayer(ctx, p1, NoSeat, 500))
	require.True(t, g.AddPlayer(ctx, p2, NoSeat, 500))
	assert.False(t, g.InProgress())
	ready, _ := g.Timer("ready")
	assert.True(t, ready.Running())

	require.True(t, g.ReadyToStart(p1, true))
	assert.False(t, g.InProgress())
	require.True(t, g.ReadyToStart(p2, true))
	assert.True(t, g.InProgress())
	assert.False(t, ready.Running())
	assert.Positive(t, b1.Count(protocol.EventReadyStatus))

	assert.False(t, g.ReadyToStart(p1, true))
	assert.Equal(t, protocol.DialogGameInProgress, lastDialog(b1))
}

func TestReadyCountdownStartsAnyway(t *testing.T) {
	h := newHarness(t)
	h.cfg.RequireReady = true
	g := h.newGame()
	ctx := context.Background()
	p1, _ := h.player("u1")
	p2, _ := h.player("u2")

	g.AddPlayer(ctx, p1, NoSeat, 500)
	g.AddPlayer(ctx, p2, NoSeat, 500)
	h.advance(4 * time.Second)
	assert.False(t, g.InProgress())
	h.advance(time.Second)
	assert.True(t, g.InProgress())
}

func TestGameTimeoutEndsGame(t *testing.T) {
	h := newHarness(t)
	h.cfg.GameTimeoutSec = 4
	h.cfg.TurnTimeoutSec = -1
	g, _, _, _, _ := startedGame(t, h)

	h.advance(4 * time.Second)
	assert.False(t, g.InProgress())
	assert.True(t, g.Ended())
}

func TestLeavingLastOpponentEndsGame(t *testing.T) {
	h := newHarness(t)
	g, p1, p2, b1, _ := startedGame(t, h)

	require.True(t, g.RemovePlayer(context.Background(), p2))
	assert.False(t, g.InProgress())
	assert.Equal(t, 1, b1.Count(protocol.EventPlayerWins))
	assert.Equal(t, 0, p1.Place())
}

func TestDisposeRefundsEveryone(t *testing.T) {
	h := newHarness(t)
	g, p1, p2, _, _ := startedGame(t, h)

	g.Dispose(context.Background())
	assert.Equal(t, int64(5000), p1.User().Balance())
	assert.Equal(t, int64(5000), p2.User().Balance())
	assert.Equal(t, 0, h.reg.Count())
	assert.False(t, g.AddPlayer(context.Background(), p1, NoSeat, 100))
}

func TestGameExportImportRoundTrip(t *testing.T) {
	h := newHarness(t)
	g, p1, p2, _, _ := startedGame(t, h)
	require.True(t, g.Action(p1, ActionStake, 1000))
	h.advance(2 * time.Second)
	require.True(t, g.Pause())

	st, err := g.Export()
	require.NoError(t, err)
	assert.True(t, st.Rebuy[0].Paused)
	assert.Equal(t, int64(2000), st.Rebuy[0].ElapsedMS)

	players := map[string]*session.Player{p1.ID(): p1, p2.ID(): p2}
	restored := h.newGame()
	require.NoError(t, restored.Import(st, func(id string) (*session.Player, bool) {
		p, ok := players[id]
		return p, ok
	}))
	again, err := restored.Export()
	require.NoError(t, err)
	assert.Equal(t, st, again)

	require.True(t, restored.Resume())
	h.advance(3 * time.Second)
	assert.Equal(t, NoSeat, p1.Place())
}
