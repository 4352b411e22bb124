// Package timer schedules delayed and repeating callbacks that are polled by a
// shared Registry instead of running one goroutine per timer.
package timer

import (
	"errors"
	"sync"
	"time"

	"game-house/internal/signal"
)

var ErrInvalidDelay = errors.New("timer: timeout delay must be positive")

// Option configures a Timer at construction time.
type Option func(*Timer)

func WithName(name string) Option {
	return func(t *Timer) { t.name = name }
}

// WithLocker makes registry-driven fires run while holding l. The running
// state is re-checked after l is acquired, so a Stop issued by the lock holder
// can never be followed by a late fire.
func WithLocker(l sync.Locker) Option {
	return func(t *Timer) { t.locker = l }
}

// WithAsyncZeroDelay schedules zero-delay timers through the registry instead
// of firing them synchronously from Start.
func WithAsyncZeroDelay() Option {
	return func(t *Timer) { t.asyncZero = true }
}

// Timer is a single schedulable unit of delayed work. A repeat count of zero
// means "until stopped"; one makes it a one-shot timeout.
type Timer struct {
	reg       *Registry
	name      string
	locker    sync.Locker
	asyncZero bool

	mu          sync.Mutex
	fn          func(*Timer)
	delay       time.Duration
	repeat      int
	count       int
	running     bool
	paused      bool
	accumulated time.Duration
	startedAt   time.Time
	disposed    bool

	OnTick     *signal.Signal[*Timer]
	OnComplete *signal.Signal[*Timer]
}

// New creates a stopped timer. A negative delay disables the timer; a zero
// delay fires synchronously on Start unless WithAsyncZeroDelay is given.
func New(reg *Registry, delay time.Duration, repeat int, fn func(*Timer), opts ...Option) *Timer {
	if repeat < 0 {
		repeat = 0
	}
	t := &Timer{
		reg:        reg,
		fn:         fn,
		delay:      delay,
		repeat:     repeat,
		OnTick:     signal.New[*Timer](),
		OnComplete: signal.New[*Timer](),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewTimeout creates a one-shot timer.
func NewTimeout(reg *Registry, delay time.Duration, fn func(*Timer), opts ...Option) (*Timer, error) {
	if delay <= 0 {
		return nil, ErrInvalidDelay
	}
	return New(reg, delay, 1, fn, opts...), nil
}

func (t *Timer) Name() string { return t.name }

func (t *Timer) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// SetDelay changes the interval used by the next Start.
func (t *Timer) SetDelay(d time.Duration) {
	t.mu.Lock()
	t.delay = d
	t.mu.Unlock()
}

func (t *Timer) RepeatCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.repeat
}

func (t *Timer) SetRepeatCount(n int) {
	if n < 0 {
		n = 0
	}
	t.mu.Lock()
	t.repeat = n
	t.mu.Unlock()
}

func (t *Timer) SetCallback(fn func(*Timer)) {
	t.mu.Lock()
	t.fn = fn
	t.mu.Unlock()
}

// Count is the number of fires in the current run.
func (t *Timer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Elapsed is the time accumulated in the current interval. It is frozen while
// the timer is stopped or paused.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked(t.reg.clock.Now())
}

// Remaining is the time left until the next fire, zero when due.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	left := t.delay - t.elapsedLocked(t.reg.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Start resumes a paused timer or begins a new run. It is a no-op while
// running, after the repeat count is exhausted, and for negative delays.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.disposed || t.running {
		t.mu.Unlock()
		return
	}
	now := t.reg.clock.Now()
	if t.paused {
		t.paused = false
		t.running = true
		t.startedAt = now
		t.mu.Unlock()
		t.reg.add(t)
		return
	}
	if t.delay < 0 || (t.repeat > 0 && t.count >= t.repeat) {
		t.mu.Unlock()
		return
	}
	if t.delay == 0 && !t.asyncZero {
		n := 1
		if t.repeat > 0 {
			n = t.repeat - t.count
		}
		t.mu.Unlock()
		t.fireSync(n)
		return
	}
	t.accumulated = 0
	t.running = true
	t.startedAt = now
	t.mu.Unlock()
	t.reg.add(t)
}

// Stop freezes the elapsed time and unregisters the timer. Stopping a paused
// timer cancels the pending resume.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.paused {
		t.paused = false
		t.mu.Unlock()
		return
	}
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.accumulated = t.elapsedLocked(t.reg.clock.Now())
	t.running = false
	t.mu.Unlock()
	t.reg.remove(t)
}

// Reset stops the timer and clears its counters.
func (t *Timer) Reset() {
	t.Stop()
	t.mu.Lock()
	t.count = 0
	t.accumulated = 0
	t.paused = false
	t.mu.Unlock()
}

func (t *Timer) Restart() {
	t.Reset()
	t.Start()
}

// Pause stops the timer but remembers that Resume should continue it.
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.running || t.paused {
		t.mu.Unlock()
		return
	}
	t.accumulated = t.elapsedLocked(t.reg.clock.Now())
	t.running = false
	t.paused = true
	t.mu.Unlock()
	t.reg.remove(t)
}

func (t *Timer) Resume() {
	if !t.Paused() {
		return
	}
	t.Start()
}

// Dispose resets the timer and drops every callback and listener.
func (t *Timer) Dispose() {
	t.Reset()
	t.OnTick.RemoveAll()
	t.OnComplete.RemoveAll()
	t.mu.Lock()
	t.fn = nil
	t.disposed = true
	t.mu.Unlock()
}

func (t *Timer) elapsedLocked(now time.Time) time.Duration {
	if !t.running {
		return t.accumulated
	}
	return t.accumulated + now.Sub(t.startedAt)
}

func (t *Timer) due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running && !t.disposed && t.elapsedLocked(now) >= t.delay
}

// fire is called by the registry on every poll.
func (t *Timer) fire() {
	if !t.due(t.reg.clock.Now()) {
		return
	}
	if t.locker != nil {
		t.locker.Lock()
		defer t.locker.Unlock()
	}

	t.mu.Lock()
	now := t.reg.clock.Now()
	if !t.running || t.disposed {
		t.mu.Unlock()
		return
	}
	elapsed := t.elapsedLocked(now)
	if elapsed < t.delay {
		t.mu.Unlock()
		return
	}
	t.count++
	done := t.repeat > 0 && t.count >= t.repeat
	if done {
		t.running = false
		t.accumulated = elapsed
	} else {
		over := elapsed - t.delay
		if over > t.delay {
			over = t.delay
		}
		t.accumulated = over
		t.startedAt = now
	}
	fn := t.fn
	t.mu.Unlock()

	if done {
		t.reg.remove(t)
	}
	t.emit(fn, done)
}

func (t *Timer) fireSync(n int) {
	for i := 0; i < n; i++ {
		t.mu.Lock()
		if t.disposed || (t.repeat > 0 && t.count >= t.repeat) {
			t.mu.Unlock()
			return
		}
		t.count++
		done := t.repeat > 0 && t.count >= t.repeat
		fn := t.fn
		t.mu.Unlock()
		t.emit(fn, done)
	}
}

func (t *Timer) emit(fn func(*Timer), done bool) {
	if fn != nil {
		fn(t)
	}
	t.OnTick.Dispatch(t)
	if done {
		t.OnComplete.Dispatch(t)
	}
}

// detach marks the timer stopped without touching the registry. Used by
// Registry.Shutdown, which already holds the active set.
func (t *Timer) detach(now time.Time) {
	t.mu.Lock()
	if t.running {
		t.accumulated = t.elapsedLocked(now)
		t.running = false
	}
	t.mu.Unlock()
}
