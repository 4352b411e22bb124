package timer

import "time"

// State is the serialisable form of a timer, used by house snapshots.
type State struct {
	Name      string `json:"name,omitempty"`
	DelayMS   int64  `json:"delay_ms"`
	Repeat    int    `json:"repeat"`
	Count     int    `json:"count"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Running   bool   `json:"running"`
	Paused    bool   `json:"paused"`
}

// Active reports whether the timer was scheduled (running or paused).
func (s State) Active() bool {
	return s.Running || s.Paused
}

func (t *Timer) Export() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Name:      t.name,
		DelayMS:   t.delay.Milliseconds(),
		Repeat:    t.repeat,
		Count:     t.count,
		ElapsedMS: t.elapsedLocked(t.reg.clock.Now()).Milliseconds(),
		Running:   t.running,
		Paused:    t.paused,
	}
}

// Import replaces the timer's state. A running state is re-registered with the
// registry and continues from the saved elapsed time.
func (t *Timer) Import(s State) {
	t.Reset()
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.delay = time.Duration(s.DelayMS) * time.Millisecond
	t.repeat = s.Repeat
	t.count = s.Count
	t.accumulated = time.Duration(s.ElapsedMS) * time.Millisecond
	t.paused = s.Paused && !s.Running
	t.running = s.Running
	t.startedAt = t.reg.clock.Now()
	running := t.running
	t.mu.Unlock()
	if running {
		t.reg.add(t)
	}
}
