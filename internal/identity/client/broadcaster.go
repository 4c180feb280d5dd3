package client

import (
	"sync"

	"pawsit/agent/internal/identity/domain"
)

// broadcaster fans auth-state transitions out to listeners. Each listener has
// its own queue drained by one goroutine, so delivery is ordered per listener
// and a slow listener never blocks publishers or other listeners.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*listener
}

type listener struct {
	fn     func(*domain.Principal)
	mu     sync.Mutex
	queue  []*domain.Principal
	wake   chan struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]*listener)}
}

// add registers fn and queues initial as its first delivery.
func (b *broadcaster) add(fn func(*domain.Principal), initial *domain.Principal) func() {
	l := &listener{fn: fn, wake: make(chan struct{}, 1)}
	l.push(initial)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = l
	b.mu.Unlock()

	go l.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			l.close()
		})
	}
}

func (b *broadcaster) publish(p *domain.Principal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.subs {
		var cp *domain.Principal
		if p != nil {
			v := *p
			cp = &v
		}
		l.push(cp)
	}
}

func (l *listener) push(p *domain.Principal) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, p)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) run() {
	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			p := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.fn(p)
		}
	}
}
