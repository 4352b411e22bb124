package protocol

import (
	"strconv"
	"sync"
	"time"
)

type Event struct {
	EventID   string `json:"event_id"`
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	ServerTS  int64  `json:"server_ts"`
	Data      any    `json:"data"`
}

// Buffer is a Channel that keeps the last max events for replay and fans them
// out to subscribers.
type Buffer struct {
	mu        sync.Mutex
	sessionID string
	nextID    int64
	max       int
	events    []Event
	watchers  map[chan Event]struct{}
	closed    bool
}

func NewBuffer(sessionID string, max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{
		sessionID: sessionID,
		max:       max,
		watchers:  map[chan Event]struct{}{},
	}
}

func (b *Buffer) Send(event string, data any) error {
	if _, ok := b.Append(event, data); !ok {
		return ErrChannelClosed
	}
	return nil
}

func (b *Buffer) Append(event string, data any) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}, false
	}
	b.nextID++
	ev := Event{
		EventID:   strconv.FormatInt(b.nextID, 10),
		Event:     event,
		SessionID: b.sessionID,
		ServerTS:  time.Now().UnixMilli(),
		Data:      data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev, true
}

func (b *Buffer) Events() []Event {
	return b.ReplayAfter("")
}

// Names lists the event names currently buffered, oldest first.
func (b *Buffer) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Event)
	}
	return out
}

// Last returns the most recent buffered event with the given name.
func (b *Buffer) Last(event string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Event == event {
			return b.events[i], true
		}
	}
	return Event{}, false
}

func (b *Buffer) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Event == event {
			n++
		}
	}
	return n
}

func (b *Buffer) ReplayAfter(lastEventID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		out := make([]Event, len(b.events))
		copy(out, b.events)
		return out
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops buffered events but keeps ids increasing.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

func (b *Buffer) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *Buffer) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
	return nil
}
