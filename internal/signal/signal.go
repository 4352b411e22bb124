// Package signal implements an ordered multicast event emitter that tolerates
// listener mutation while a dispatch is running.
package signal

import "sync"

// Listener is a handle to a registered callback. Handles, not funcs, carry
// identity: adding the same handle twice is a no-op.
type Listener[T any] struct {
	fn func(T)
}

// Func wraps fn in a listener handle.
func Func[T any](fn func(T)) *Listener[T] {
	return &Listener[T]{fn: fn}
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
	opRemoveAll
)

type pendingOp[T any] struct {
	kind opKind
	l    *Listener[T]
}

// Signal dispatches values to its listeners in registration order.
//
// Add, Remove and RemoveAll issued while a dispatch is in progress are queued
// and replayed in call order once the outermost dispatch has finished.
type Signal[T any] struct {
	mu        sync.Mutex
	listeners []*Listener[T]
	depth     int
	pending   []pendingOp[T]
}

// New returns an empty signal.
func New[T any]() *Signal[T] {
	return &Signal[T]{}
}

// Connect wraps fn in a listener, adds it and returns the handle.
func (s *Signal[T]) Connect(fn func(T)) *Listener[T] {
	l := Func(fn)
	s.Add(l)
	return l
}

func (s *Signal[T]) Add(l *Listener[T]) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.pending = append(s.pending, pendingOp[T]{kind: opAdd, l: l})
		return
	}
	s.addLocked(l)
}

func (s *Signal[T]) Remove(l *Listener[T]) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.pending = append(s.pending, pendingOp[T]{kind: opRemove, l: l})
		return
	}
	s.removeLocked(l)
}

func (s *Signal[T]) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.pending = append(s.pending, pendingOp[T]{kind: opRemoveAll})
		return
	}
	s.listeners = nil
}

// Has reports whether l is currently registered. Queued operations are not
// taken into account.
func (s *Signal[T]) Has(l *Listener[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(l) >= 0
}

func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Dispatch calls every listener with v. A panicking listener propagates to the
// caller; the signal stays usable afterwards.
func (s *Signal[T]) Dispatch(v T) {
	s.mu.Lock()
	listeners := s.listeners
	s.depth++
	s.mu.Unlock()

	defer s.finishDispatch()
	for _, l := range listeners {
		l.fn(v)
	}
}

func (s *Signal[T]) finishDispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth--
	if s.depth > 0 {
		return
	}
	ops := s.pending
	s.pending = nil
	for _, op := range ops {
		switch op.kind {
		case opAdd:
			s.addLocked(op.l)
		case opRemove:
			s.removeLocked(op.l)
		case opRemoveAll:
			s.listeners = nil
		}
	}
}

func (s *Signal[T]) addLocked(l *Listener[T]) {
	if s.indexLocked(l) >= 0 {
		return
	}
	// copy-on-write keeps slices handed to running dispatches intact
	next := make([]*Listener[T], 0, len(s.listeners)+1)
	next = append(next, s.listeners...)
	s.listeners = append(next, l)
}

func (s *Signal[T]) removeLocked(l *Listener[T]) {
	idx := s.indexLocked(l)
	if idx < 0 {
		return
	}
	next := make([]*Listener[T], 0, len(s.listeners)-1)
	next = append(next, s.listeners[:idx]...)
	s.listeners = append(next, s.listeners[idx+1:]...)
}

func (s *Signal[T]) indexLocked(l *Listener[T]) int {
	for i, cur := range s.listeners {
		if cur == l {
			return i
		}
	}
	return -1
}
