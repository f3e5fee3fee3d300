package stream

import (
	"sync"

	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/metrics"
)

// ReadableOptions configures a Readable's consumption behavior.
type ReadableOptions struct {
	// Credit is how many chunks to admit per stream_pull grant. Non-chunked
	// streams (single stream_data{done:true}) never pull.
	Credit int
	OnData  func(data any, done bool)
	OnError func(message string)
	OnEnd   func()
	OnCancel func(reason string)
}

// Readable is the consumer side of a stream: it registers with a Dispatcher under a
// streamId, grants credit back to the producer via stream_pull frames, and forwards
// stream_data/stream_end/stream_error/stream_cancel to the caller's callbacks.
type Readable struct {
	opts ReadableOptions

	mu       sync.Mutex
	state    State
	streamID string
	send     func(f *frame.Frame) bool
	unreg    func()
}

// NewReadable constructs a Readable; call Bind to attach it to a Dispatcher and a peer.
func NewReadable(opts ReadableOptions) *Readable {
	if opts.Credit <= 0 {
		opts.Credit = 1
	}
	return &Readable{opts: opts, state: StatePending}
}

func (r *Readable) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Bind registers r on d for streamID and starts granting credit (chunked streams only);
// send transmits r's outgoing stream_pull/stream_cancel frames to the producer.
func (r *Readable) Bind(d *Dispatcher, streamID string, chunked bool, send func(f *frame.Frame) bool) {
	r.mu.Lock()
	r.streamID = streamID
	r.send = send
	r.state = StateActive
	r.mu.Unlock()

	r.unreg = d.Register(streamID, r.onFrame)

	if chunked {
		r.grant()
	}
}

func (r *Readable) grant() {
	r.mu.Lock()
	send := r.send
	streamID := r.streamID
	credit := r.opts.Credit
	r.mu.Unlock()
	if send != nil {
		send(&frame.Frame{Type: frame.StreamPull, Body: frame.PullBody{StreamID: streamID, Credit: credit}})
	}
}

func (r *Readable) onFrame(f *frame.Frame) {
	switch f.Type {
	case frame.StreamData:
		body, ok := f.StreamData()
		if !ok {
			return
		}
		metrics.AddStreamBytes("in", chunkByteSize(body.Data))
		if r.opts.OnData != nil {
			r.opts.OnData(body.Data, body.Done)
		}
		if body.Done {
			r.finish(StateEnded)
			if r.opts.OnEnd != nil {
				r.opts.OnEnd()
			}
			return
		}
		r.grant()
	case frame.StreamEnd:
		r.finish(StateEnded)
		if r.opts.OnEnd != nil {
			r.opts.OnEnd()
		}
	case frame.StreamError:
		body, ok := f.StreamErr()
		msg := ""
		if ok {
			msg = body.Message
		}
		r.finish(StateError)
		if r.opts.OnError != nil {
			r.opts.OnError(msg)
		}
	case frame.StreamCancel:
		body, ok := f.StreamCancelMsg()
		reason := ""
		if ok {
			reason = body.Reason
		}
		r.finish(StateCancelled)
		if r.opts.OnCancel != nil {
			r.opts.OnCancel(reason)
		}
	}
}

// Cancel tells the producer this reader is giving up early.
func (r *Readable) Cancel(reason string) {
	r.mu.Lock()
	if r.state != StateActive {
		r.mu.Unlock()
		return
	}
	send := r.send
	streamID := r.streamID
	r.mu.Unlock()
	if send != nil {
		send(&frame.Frame{Type: frame.StreamCancel, Body: frame.StreamCancelBody{StreamID: streamID, Reason: reason}})
	}
	r.finish(StateCancelled)
}

func (r *Readable) finish(s State) {
	r.mu.Lock()
	r.state = s
	unreg := r.unreg
	r.mu.Unlock()
	if unreg != nil {
		unreg()
	}
}
