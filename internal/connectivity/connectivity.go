package connectivity

import (
	"sync"
	"sync/atomic"
)

// Provider reports whether the remote backend is reachable right now.
// Implementations must answer live; callers never cache the value.
type Provider interface {
	IsOnline() bool
}

// Switch is a settable Provider. Subscribers are signalled on every
// offline -> online transition.
type Switch struct {
	online atomic.Bool

	mu   sync.Mutex
	subs []chan struct{}
}

func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online.Store(online)
	return s
}

var _ Provider = (*Switch)(nil)

func (s *Switch) IsOnline() bool { return s.online.Load() }

// Set updates the state and reports whether it changed.
func (s *Switch) Set(online bool) bool {
	was := s.online.Swap(online)
	if was == online {
		return false
	}
	if online {
		s.notify()
	}
	return true
}

// Subscribe returns a channel that receives a value after each reconnect.
// Signals coalesce: a slow reader sees at most one pending value.
func (s *Switch) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Switch) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
