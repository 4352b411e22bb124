package table

import (
	"context"
	"sync"
	"testing"
	"time"

	"game-house/internal/backend"
	"game-house/internal/config"
	"game-house/internal/protocol"
	"game-house/internal/session"
	"game-house/internal/timer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t     *testing.T
	clock *fakeClock
	reg   *timer.Registry
	svc   *backend.Memory
	cfg   config.GameConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return &harness{
		t:     t,
		clock: clock,
		reg:   timer.NewRegistry(timer.NewLoopDriver(10*time.Millisecond), timer.WithClock(clock)),
		svc:   backend.NewMemory(5000),
		cfg:   testGameConfig(),
	}
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		Kind:                   KindTurns,
		MaxSeats:               2,
		MinPlayersToStart:      2,
		MinBuyIn:               100,
		MaxBuyIn:               5000,
		RoundsLimit:            3,
		TurnTimeoutSec:         10,
		GameTimeoutSec:         -1,
		RoundDelaySec:          1,
		ResumeGameCountdownSec: 0,
		WinnerDelaySec:         2,
		RebuyTimeoutSec:        5,
		ReadyCountdownSec:      5,
	}
}

func (h *harness) newGame() *Game {
	return NewGame("g1", h.reg, &sync.Mutex{}, func() config.GameConfig { return h.cfg })
}

func (h *harness) player(userID string) (*session.Player, *protocol.Buffer) {
	h.t.Helper()
	user := session.NewUser(userID, userID, backend.NewAccount(h.svc, userID))
	user.RefreshBalance(context.Background())
	buf := protocol.NewBuffer(userID+"-s", 200)
	p, _ := user.Connect(userID+"-s", buf)
	return p, buf
}

// advance moves the clock and runs one registry poll.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.reg.Tick()
}

func lastDialog(buf *protocol.Buffer) string {
	ev, ok := buf.Last(protocol.EventDialog)
	if !ok {
		return ""
	}
	return ev.Data.(protocol.Dialog).Code
}
