package timer

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock abstracts wall time so tests can drive timers deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

// Driver polls a registry. Activate is called when the first timer is
// registered and Deactivate when the last one leaves; both run under the
// registry lock and must not call back into it.
type Driver interface {
	Activate(tick func())
	Deactivate()
	Close() error
}

type RegistryOption func(*Registry)

func WithClock(c Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// Registry is the set of running timers of one flavour plus the driver that
// polls them. A single mutex guards both the active set and the scan.
type Registry struct {
	clock  Clock
	driver Driver

	mu      sync.Mutex
	timers  []*Timer
	index   map[*Timer]struct{}
	running bool
	closed  bool
}

// NewRegistry returns a registry polled by driver. A nil driver gets a
// LoopDriver, which only ticks when its owner runs it or calls Tick.
func NewRegistry(driver Driver, opts ...RegistryOption) *Registry {
	if driver == nil {
		driver = NewLoopDriver(DefaultResolution)
	}
	r := &Registry{
		clock:  SystemClock,
		driver: driver,
		index:  map[*Timer]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Clock() Clock { return r.clock }

// Count is the number of currently registered timers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Running reports whether the driver is active.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Tick fires every due timer once, in registration order. A panicking
// callback is logged and the remaining timers still fire.
func (r *Registry) Tick() {
	r.mu.Lock()
	if len(r.timers) == 0 {
		r.mu.Unlock()
		return
	}
	due := make([]*Timer, len(r.timers))
	copy(due, r.timers)
	r.mu.Unlock()

	for _, t := range due {
		fireRecovered(t)
	}
}

func fireRecovered(t *Timer) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("timer", t.Name()).Msg("timer callback panicked")
		}
	}()
	t.fire()
}

// Shutdown stops every registered timer and closes the driver. It must not be
// called from a timer callback.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	timers := r.timers
	r.timers = nil
	r.index = map[*Timer]struct{}{}
	wasRunning := r.running
	r.running = false
	r.closed = true
	if wasRunning {
		r.driver.Deactivate()
	}
	r.mu.Unlock()

	now := r.clock.Now()
	for _, t := range timers {
		t.detach(now)
	}
	return r.driver.Close()
}

func (r *Registry) add(t *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.index[t]; ok {
		return
	}
	r.index[t] = struct{}{}
	r.timers = append(r.timers, t)
	if !r.running {
		r.running = true
		r.driver.Activate(r.Tick)
	}
}

func (r *Registry) remove(t *Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[t]; !ok {
		return
	}
	delete(r.index, t)
	for i, cur := range r.timers {
		if cur == t {
			next := make([]*Timer, 0, len(r.timers)-1)
			next = append(next, r.timers[:i]...)
			r.timers = append(next, r.timers[i+1:]...)
			break
		}
	}
	if len(r.timers) == 0 && r.running {
		r.running = false
		r.driver.Deactivate()
	}
}
