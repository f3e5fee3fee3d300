// Package wire is the substitute for the browser's window.postMessage primitive.
// Endpoint is that concept's Go shape: a thing you can send a frame to, and a thing you
// can subscribe to for inbound frames. It carries the adversarial properties of
// postMessage: delivery is best-effort (Post returns false instead of panicking when
// the peer is gone), every Subscribe callback on an Endpoint sees every message sent to
// it (promiscuous fan-out), and there is no ordering promised across distinct senders.
package wire

// Message is the raw, untyped payload crossing an Endpoint. Channel is the only
// component that touches this; everything above it works with frame.Frame.
type Message = any

// Listener is invoked once per inbound Message, carrying the apparent origin of the
// sender (the postMessage "origin" string) and, where available, a handle back to the
// sending Endpoint (the postMessage "source" window).
type Listener func(msg Message, origin string, source Endpoint)

// Endpoint models one side of a postMessage-capable window. Implementations must be
// safe for concurrent use: Post may be called from many goroutines, and Subscribe's
// listener may be invoked concurrently with a Post on the same Endpoint.
type Endpoint interface {
	// Post attempts best-effort delivery of msg to this endpoint's listeners, as if
	// sent from 'from' with the given apparent origin. It returns false, never an
	// error, when the endpoint is unavailable (closed/detached) -- mirroring
	// postMessage's silent failure mode against a torn-down window.
	Post(msg Message, origin string, from Endpoint) bool

	// Subscribe registers fn to be called for every future Post to this endpoint.
	// It returns an unsubscribe function. Order of invocation across listeners
	// matches registration order (Channel relies on this for receiver fan-out).
	Subscribe(fn Listener) (unsubscribe func())

	// Available reports whether Post would currently have any chance of success:
	// the Go analogue of checking a window isn't closed/detached before writing to
	// it. A torn-down Endpoint permanently reports false.
	Available() bool

	// Origin is this endpoint's own origin string, stamped on frames it sends.
	Origin() string
}
