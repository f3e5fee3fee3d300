// Package stream implements the stream protocol. Dispatcher demultiplexes
// stream_data/stream_end/stream_error/stream_cancel/stream_pull frames by streamId;
// Writable and Readable are the producer/consumer sides; file.go specializes both for
// base64-framed file transfer with autoResolve.
package stream

import (
	"sync"

	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/msgctx"
)

// ChunkHandler receives every non-stream_start frame for one streamId.
type ChunkHandler func(f *frame.Frame)

// Dispatcher is a map of streamId to ChunkHandler, one per in-flight stream.
type Dispatcher struct {
	mu sync.RWMutex
	handlers map[string]ChunkHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]ChunkHandler)}
}

// Register installs fn for streamId, returning an unregister function. Writable and
// Readable both call this (for stream_pull and stream_cancel/stream_data/stream_end/
// stream_error respectively).
func (d *Dispatcher) Register(streamID string, fn ChunkHandler) (unregister func()) {
	d.mu.Lock()
	d.handlers[streamID] = fn
	d.mu.Unlock()
	return func() { d.Unregister(streamID) }
}

func (d *Dispatcher) Unregister(streamID string) {
	d.mu.Lock()
	delete(d.handlers, streamID)
	d.mu.Unlock()
}

func (d *Dispatcher) Has(streamID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[streamID]
	return ok
}

// Dispatch looks up the handler for f's streamId and calls it. An unknown streamId is
// a silent no-op -- never a panic, never a log at error level. It cooperatively claims
// ctx (if non-nil) so the same stream frame is never double-dispatched by co-resident
// endpoints sharing one Channel.
func (d *Dispatcher) Dispatch(f *frame.Frame, ctx *msgctx.Context) {
	if f.Type == frame.StreamStart {
		return // handshake, handled by facade/server, not this dispatcher
	}
	streamID, ok := frame.StreamIDOf(f)
	if !ok {
		return
	}

	d.mu.RLock()
	fn, ok := d.handlers[streamID]
	d.mu.RUnlock()
	if !ok {
		return
	}

	if ctx != nil {
		if ctx.HandledBy() != "" {
			return
		}
		ctx.MarkAcceptedBy("stream:" + streamID)
	}
	fn(f)
}
