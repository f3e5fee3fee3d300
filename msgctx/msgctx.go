// Package msgctx implements MessageContext: the per-delivery value carrying the
// sender's apparent origin/source plus a monotone cooperative-lock state machine that
// lets several handlers -- and several co-resident endpoints sharing one Channel --
// coordinate who answers a given frame.
package msgctx

import (
	"sync"

	"github.com/winbridge/winbridge/wire"
)

// Stage is the derived state of a Context. It is never stored directly; GetStage
// derives it from which of acceptedBy/handledBy/doneBy is set.
type Stage int

const (
	Pending Stage = iota
	Handling
	Accepted
	Done
)

func (s Stage) String() string {
	switch s {
	case Handling:
		return "handling"
	case Accepted:
		return "accepted"
	case Done:
		return "done"
	default:
		return "pending"
	}
}

// Context is a per-delivery value. It is created fresh by Channel for every accepted
// inbound frame and threaded through Dispatcher, handlers, and (for servers) the
// Response object. All mutation goes through the mark* methods; transitions are
// monotone -- once a field is set it is never cleared.
type Context struct {
	Origin string
	Source wire.Endpoint

	mu sync.Mutex
	handledBy string
	acceptedBy string
	doneBy string
	watchers []stateWatcher
}

type stateWatcher struct {
	name string
	cb func(Stage)
}

// New constructs a Context for one inbound delivery.
func New(origin string, source wire.Endpoint) *Context {
	return &Context{Origin: origin, Source: source}
}

// MarkHandledBy records that id has started handling this delivery. A no-op if already
// set (monotone).
func (c *Context) MarkHandledBy(id string) {
	c.mu.Lock()
	changed := c.handledBy == ""
	if changed {
		c.handledBy = id
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// MarkAcceptedBy records that id positively accepted (will answer) this delivery; it
// implies MarkHandledBy.
func (c *Context) MarkAcceptedBy(id string) {
	c.mu.Lock()
	changedHandled := c.handledBy == ""
	if changedHandled {
		c.handledBy = id
	}
	changedAccepted := c.acceptedBy == ""
	if changedAccepted {
		c.acceptedBy = id
	}
	c.mu.Unlock()
	if changedHandled || changedAccepted {
		c.notify()
	}
}

// MarkDoneBy records that id has finished processing this delivery.
func (c *Context) MarkDoneBy(id string) {
	c.mu.Lock()
	changed := c.doneBy == ""
	if changed {
		c.doneBy = id
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Context) HandledBy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handledBy
}

func (c *Context) AcceptedBy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptedBy
}

func (c *Context) DoneBy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneBy
}

// GetStage derives the current Stage: doneBy -> Done, else acceptedBy -> Accepted, else
// handledBy -> Handling, else Pending.
func (c *Context) GetStage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.doneBy != "":
		return Done
	case c.acceptedBy != "":
		return Accepted
	case c.handledBy != "":
		return Handling
	default:
		return Pending
	}
}

// OnStateChange registers cb to fire only on observed Stage transitions (not on every
// mark call -- two handlers both calling MarkHandledBy with the same winning id fire
// the callback once). name is purely diagnostic.
func (c *Context) OnStateChange(name string, cb func(Stage)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, stateWatcher{name: name, cb: cb})
	c.mu.Unlock()
}

func (c *Context) notify() {
	stage := c.GetStage()
	c.mu.Lock()
	watchers := append([]stateWatcher(nil), c.watchers...)
	c.mu.Unlock()
	for _, w := range watchers {
		w.cb(stage)
	}
}
