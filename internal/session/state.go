package session

import (
	"sync"
	"time"

	profiledomain "pawsit/agent/internal/profile/domain"
)

// Phase is the resolver's position in its state machine.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseUnauthenticated
	PhaseResolvingRole
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseResolvingRole:
		return "resolving_role"
	case PhaseResolved:
		return "resolved"
	}
	return "unknown"
}

// State is an immutable snapshot of the session. Destination is empty until a
// reset has been issued for the current event. Role is only set when the
// profile store was consulted.
type State struct {
	Phase       Phase
	Destination Destination
	UserID      string
	Elevated    bool
	Role        profiledomain.Role
	ChangedAt   time.Time
}

// store holds the current State and notifies subscribers of every change in
// order. Callbacks run outside mu so they may call Snapshot.
type store struct {
	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int

	notifyMu sync.Mutex
}

func newStore(initial State) *store {
	return &store{state: initial, subs: make(map[int]func(State))}
}

func (s *store) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *store) set(st State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state = st
	fns := make([]func(State), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (s *store) subscribe(fn func(State)) func() {
	s.notifyMu.Lock()
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	current := s.state
	s.mu.Unlock()
	fn(current)
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
