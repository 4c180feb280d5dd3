package deeplink

import (
	"context"
	"sync"
)

// Feed is an in-process URLSource. The launch URL comes from config; runtime
// URLs are pushed by the shell's OpenURL call and the links server.
// Subscribers receive URLs in Push order on a single goroutine per Feed.
type Feed struct {
	initial string

	mu      sync.Mutex
	subs    map[int]func(string)
	nextSub int
	queue   []string
	running bool
}

// NewFeed returns a Feed whose InitialURL is launchURL.
func NewFeed(launchURL string) *Feed {
	return &Feed{initial: launchURL, subs: make(map[int]func(string))}
}

// InitialURL returns the launch URL, or "" when the process was not started from a link.
func (f *Feed) InitialURL(context.Context) (string, error) {
	return f.initial, nil
}

// Subscribe registers fn for runtime URLs.
func (f *Feed) Subscribe(fn func(string)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Push delivers raw to current subscribers without blocking the caller.
func (f *Feed) Push(raw string) {
	f.mu.Lock()
	f.queue = append(f.queue, raw)
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()
	go f.drain()
}

func (f *Feed) drain() {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.running = false
			f.mu.Unlock()
			return
		}
		raw := f.queue[0]
		f.queue = f.queue[1:]
		fns := make([]func(string), 0, len(f.subs))
		for i := 0; i < f.nextSub; i++ {
			if fn, ok := f.subs[i]; ok {
				fns = append(fns, fn)
			}
		}
		f.mu.Unlock()
		for _, fn := range fns {
			fn(raw)
		}
	}
}
