package wire

import "sync"

// LocalBus is the production Endpoint for two cooperating goroutines standing in for a
// parent document and a child frame in the same process. A caller holding a *LocalBus
// reference is holding the Go equivalent of a window reference (what window.open or
// contentWindow would return): Post on it delivers to *its* subscribers, exactly as
// calling postMessage on a window reference delivers to that window's listeners.
// NewPair hands back two such references, each already primed with the other's origin
// string so tests can wire a client/server pair with one call.
type LocalBus struct {
	origin string
	mu sync.RWMutex
	subs []subscription
	nextID uint64
	closed bool
}

type subscription struct {
	id uint64
	fn Listener
}

// NewPair returns two independent LocalBus endpoints. The caller is responsible for
// handing each side a reference to the other (e.g. as the outbox's target window).
func NewPair(originA, originB string) (a, b *LocalBus) {
	return &LocalBus{origin: originA}, &LocalBus{origin: originB}
}

func (e *LocalBus) Origin() string { return e.origin }

func (e *LocalBus) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close tears this endpoint down permanently, as if the frame/window were destroyed.
// Future Post calls targeting it return false without delivering.
func (e *LocalBus) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *LocalBus) Subscribe(fn Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Post delivers msg to this endpoint's subscribers, as if the sender had called
// postMessage on a reference to this window: every currently-subscribed listener is
// invoked in registration order. Channel is ordinarily the only subscriber, but a
// second Channel sharing this Endpoint (e.g. two co-resident servers) would see it too.
func (e *LocalBus) Post(msg Message, origin string, from Endpoint) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	listeners := make([]Listener, len(e.subs))
	for i, s := range e.subs {
		listeners[i] = s.fn
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(msg, origin, from)
	}
	return true
}
