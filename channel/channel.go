// Package channel implements the only component that talks directly to a
// wire.Endpoint. A Channel is identified by (transport, secretKey); Cache (cache.go)
// guarantees endpoints sharing a key in the same process share exactly one Channel.
package channel

import (
	"sync"
	"time"

	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/nlog"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/wire"
)

// Receiver fans one delivery to a single endpoint's handlers. Dispatcher is ordinarily
// the only thing that registers one, but nothing here assumes that.
type Receiver func(f *frame.Frame, ctx *msgctx.Context)

// Channel is the single subscription on a wire.Endpoint for one (transport, secretKey)
// pair, fanning each accepted delivery to every registered Receiver in order.
type Channel struct {
	self wire.Endpoint
	secretKey string

	mu sync.RWMutex
	receivers []receiverEntry
	unsub func()
}

type receiverEntry struct {
	id uint64
	fn Receiver
}

// New subscribes self to its own inbound deliveries. secretKey may be empty (an
// unkeyed channel), in which case only unkeyed frames are accepted.
func New(self wire.Endpoint, secretKey string) *Channel {
	c := &Channel{self: self, secretKey: secretKey}
	c.unsub = self.Subscribe(c.onMessage)
	return c
}

// SecretKey returns this Channel's isolation tag.
func (c *Channel) SecretKey() string { return c.secretKey }

var nextReceiverID uint64
var receiverIDMu sync.Mutex

func genReceiverID() uint64 {
	receiverIDMu.Lock()
	defer receiverIDMu.Unlock()
	nextReceiverID++
	return nextReceiverID
}

// AddReceiver registers fn to be called for every future accepted delivery, in
// registration order relative to other receivers.
func (c *Channel) AddReceiver(fn Receiver) (remove func()) {
	id := genReceiverID()
	c.mu.Lock()
	c.receivers = append(c.receivers, receiverEntry{id: id, fn: fn})
	c.mu.Unlock()
	return func() { c.RemoveReceiver(id) }
}

// RemoveReceiver is exposed so Dispatcher can remove itself by the id returned from
// AddReceiver's closure without leaking the id type publicly; most callers should just
// invoke the remove func AddReceiver returns.
func (c *Channel) RemoveReceiver(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.receivers {
		if r.id == id {
			c.receivers = append(c.receivers[:i], c.receivers[i+1:]...)
			return
		}
	}
}

// Unsubscribe tears down this Channel's subscription on its Endpoint. Called by Cache
// when the reference count reaches zero.
func (c *Channel) Unsubscribe() {
	if c.unsub != nil {
		c.unsub()
	}
}

// onMessage is the wire.Listener installed on self. It implements filter rules C1-C3
// and constructs a fresh MessageContext for every accepted delivery.
func (c *Channel) onMessage(msg wire.Message, origin string, source wire.Endpoint) {
	f, ok := frame.FromWireMessage(msg)
	if !ok || !f.IsWellFormed() { // C1
		return
	}
	if !c.secretKeyMatches(f) { // C2
		return
	}

	ctx := msgctx.New(origin, source)
	c.mu.RLock()
	receivers := make([]Receiver, len(c.receivers))
	for i, r := range c.receivers {
		receivers[i] = r.fn
	}
	c.mu.RUnlock()

	for _, recv := range receivers {
		c.runReceiver(recv, f, ctx)
	}
}

// runReceiver isolates a panicking/erroring receiver so the rest of the fan-out still
// runs: one bad receiver never stops the others from seeing the delivery.
func (c *Channel) runReceiver(recv Receiver, f *frame.Frame, ctx *msgctx.Context) {
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("channel: receiver panic on %s/%s: %v", f.Type, f.RequestID, r)
		}
	}()
	recv(f, ctx)
}

func (c *Channel) secretKeyMatches(f *frame.Frame) bool {
	if c.secretKey == "" {
		return f.SecretKey == ""
	}
	return f.SecretKey == c.secretKey
}

// Send emits a raw frame to target, stamping this Channel's secretKey. It returns false
// (never an error) when target is unavailable, matching postMessage's silent failure
// mode against a torn-down window.
func (c *Channel) Send(target wire.Endpoint, f *frame.Frame, targetOrigin string) bool {
	if target == nil || !isAvailable(target) {
		return false
	}
	f.SecretKey = c.secretKey
	if targetOrigin == "" {
		targetOrigin = "*"
	}
	return target.Post(frame.ToWireMessage(f), c.self.Origin(), c.self)
}

// SendMessage assembles a wire frame from the given kind-specific fields and sends it;
// callers fill in Role/CreatorID themselves (Dispatcher.Send does that).
func (c *Channel) SendMessage(target wire.Endpoint, targetOrigin string, typ frame.Type, requestID string, partial *frame.Frame) bool {
	f := partial
	if f == nil {
		f = &frame.Frame{}
	}
	f.ProtocolVersion = frame.CurrentVersion
	f.Timestamp = time.Now().UnixNano()
	f.Type = typ
	f.RequestID = requestID
	return c.Send(target, f, targetOrigin)
}

// PrefixPath namespaces a route with this Channel's secretKey, so a
// server wrapper configured with a secretKey doesn't collide with routes registered by
// an unkeyed server sharing the same underlying Endpoint.
func (c *Channel) PrefixPath(p string) string {
	if c.secretKey == "" {
		return p
	}
	return c.secretKey + ":" + p
}

func isAvailable(e wire.Endpoint) bool {
	return e != nil && e.Available()
}
