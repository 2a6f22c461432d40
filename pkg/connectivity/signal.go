package connectivity

import (
	"sync"
	"time"
)

type Listener func(online bool)

// ISignal is the advisory online/offline state every other component observes.
type ISignal interface {
	IsOnline() bool
	OnChange(listener Listener) (unsubscribe func())
	Set(online bool)
}

type signal struct {
	mu        sync.Mutex
	online    bool
	pending   bool
	timer     *time.Timer
	debounce  time.Duration
	listeners map[int]Listener
	nextID    int
}

// NewSignal starts in the given state. With a positive debounce a transition
// is published only after the new state has held for that long.
func NewSignal(initial bool, debounce time.Duration) ISignal {
	return &signal{
		online:    initial,
		pending:   initial,
		debounce:  debounce,
		listeners: make(map[int]Listener),
	}
}

func (s *signal) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.online
}

func (s *signal) OnChange(listener Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *signal) Set(online bool) {
	s.mu.Lock()
	s.pending = online

	if s.debounce <= 0 {
		listeners := s.commitLocked()
		s.mu.Unlock()
		notify(listeners, online)
		return
	}

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if online == s.online {
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.debounce, s.settle)
	s.mu.Unlock()
}

func (s *signal) settle() {
	s.mu.Lock()
	s.timer = nil
	online := s.pending
	listeners := s.commitLocked()
	s.mu.Unlock()

	notify(listeners, online)
}

// commitLocked applies the pending state and returns the listeners to notify,
// or nil when nothing actually changed.
func (s *signal) commitLocked() []Listener {
	if s.pending == s.online {
		return nil
	}
	s.online = s.pending

	out := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func notify(listeners []Listener, online bool) {
	for _, l := range listeners {
		l(online)
	}
}
