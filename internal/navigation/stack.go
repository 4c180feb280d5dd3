// Package navigation is the in-memory navigation stack the renderer mirrors.
// The session resolver resets it; deep links and screens push onto it.
package navigation

import (
	"log/slog"
	"maps"
	"sync"
)

// Kind is the kind of stack mutation.
type Kind string

const (
	KindReset    Kind = "reset"
	KindNavigate Kind = "navigate"
)

// Route is one screen on the stack.
type Route struct {
	Screen string
	Params map[string]string
}

// Command is a stack mutation as seen by subscribers. Replay is set on the
// commands that rebuild the current stack for a new subscriber.
type Command struct {
	Seq    uint64
	Kind   Kind
	Route  Route
	Replay bool
}

// Stack is safe for concurrent use. NavigateTo calls that arrive before the
// first ResetTo are held back and applied, in order, right after it.
type Stack struct {
	log *slog.Logger

	// notifyMu is held across a mutation and its notifications so subscribers
	// see commands in Seq order.
	notifyMu sync.Mutex
	mu       sync.Mutex
	routes   []Route
	seq      uint64
	reset    bool
	deferred []Route
	subs     map[int]func(Command)
	nextSub  int
}

// New returns an empty stack.
func New(log *slog.Logger) *Stack {
	if log == nil {
		log = slog.Default()
	}
	return &Stack{log: log, subs: make(map[int]func(Command))}
}

// ResetTo replaces the stack with screen.
func (s *Stack) ResetTo(screen string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	var cmds []Command
	s.seq++
	s.routes = []Route{{Screen: screen}}
	cmds = append(cmds, Command{Seq: s.seq, Kind: KindReset, Route: Route{Screen: screen}})
	if !s.reset {
		s.reset = true
		for _, r := range s.deferred {
			cmds = append(cmds, s.pushLocked(r))
		}
		s.deferred = nil
	}
	fns := s.subscribersLocked()
	s.mu.Unlock()

	s.log.Debug("navigation: reset", "screen", screen, "replayed", len(cmds)-1)
	deliver(fns, cmds)
}

// NavigateTo pushes screen with params. Params are copied.
func (s *Stack) NavigateTo(screen string, params map[string]string) {
	r := Route{Screen: screen, Params: maps.Clone(params)}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !s.reset {
		s.deferred = append(s.deferred, r)
		s.mu.Unlock()
		s.log.Debug("navigation: deferred until first reset", "screen", screen)
		return
	}
	cmd := s.pushLocked(r)
	fns := s.subscribersLocked()
	s.mu.Unlock()

	deliver(fns, []Command{cmd})
}

func (s *Stack) pushLocked(r Route) Command {
	s.seq++
	s.routes = append(s.routes, r)
	return Command{Seq: s.seq, Kind: KindNavigate, Route: r}
}

func (s *Stack) subscribersLocked() []func(Command) {
	fns := make([]func(Command), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func deliver(fns []func(Command), cmds []Command) {
	for _, cmd := range cmds {
		for _, fn := range fns {
			fn(cmd)
		}
	}
}

// Current returns the top of the stack, or false if nothing was reset yet.
func (s *Stack) Current() (Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.routes) == 0 {
		return Route{}, false
	}
	return s.routes[len(s.routes)-1], true
}

// Routes returns a copy of the stack, bottom first.
func (s *Stack) Routes() []Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Route(nil), s.routes...)
}

// Subscribe replays the current stack to fn as Replay commands and then
// delivers every mutation in order. fn runs on the mutating goroutine and
// must not call back into the Stack.
func (s *Stack) Subscribe(fn func(Command)) (unsubscribe func()) {
	s.notifyMu.Lock()
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	routes := append([]Route(nil), s.routes...)
	seq := s.seq
	s.mu.Unlock()

	for i, r := range routes {
		kind := KindNavigate
		if i == 0 {
			kind = KindReset
		}
		fn(Command{Seq: seq, Kind: kind, Route: r, Replay: true})
	}
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
