package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/metrics"
	"github.com/winbridge/winbridge/wire"
)

func chunkByteSize(data any) int {
	switch v := data.(type) {
	case string:
		return len(v)
	case []byte:
		return len(v)
	default:
		return 0
	}
}

// State is a Writable/Readable stream's lifecycle stage.
type State int

const (
	StatePending State = iota
	StateActive
	StateEnded
	StateCancelled
	StateError
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	default:
		return "pending"
	}
}

// Chunk is one item a producer yields.
type Chunk struct {
	Data any
	Done bool
}

// Producer supplies chunks to a Writable via a uniform pull interface. Exactly one of
// Next or an Iterator (wrapped to Next by IteratorProducer) is used. A nil Producer is
// the degenerate empty stream.
type Producer interface {
	Next(ctx context.Context) (Chunk, error)
}

// ProducerFunc adapts a plain function to Producer.
type ProducerFunc func(ctx context.Context) (Chunk, error)

func (f ProducerFunc) Next(ctx context.Context) (Chunk, error) { return f(ctx) }

// Iterator is an alternate chunk source; IteratorProducer normalizes it to the
// uniform Next shape.
type Iterator interface {
	Next() (data any, ok bool, err error)
}

func IteratorProducer(it Iterator) Producer {
	return ProducerFunc(func(_ context.Context) (Chunk, error) {
		data, ok, err := it.Next()
		if err != nil {
			return Chunk{}, err
		}
		if !ok {
			return Chunk{Done: true}, nil
		}
		return Chunk{Data: data}, nil
	})
}

// WritableOptions configures a Writable.
type WritableOptions struct {
	Kind string // "data" | "file"
	Chunked bool
	Metadata map[string]any
	Producer Producer
	FileName string
	MimeType string
	Size int64
	AutoResolve bool
}

// BindArgs captures the peer a Writable sends to, supplied by Outbox.SendStream or
// Response.SendStream.
type BindArgs struct {
	RequestID string
	StreamID string
	TargetWindow wire.Endpoint
	TargetOrigin string
	TargetID string
	// Send emits one stream_* frame to the peer; TargetID/requestId are already
	// stamped by the caller (Outbox).
	Send func(f *frame.Frame) bool
	// RegisterPull installs a callback invoked when the consumer grants credit;
	// returns an unregister func. nil is valid for Chunked=false streams, which
	// never wait on credit.
	RegisterPull func(onPull func(credit int)) (unregister func())
}

// Writable is the producer side of a stream.
type Writable struct {
	opts WritableOptions

	mu sync.Mutex
	state State
	err error
	bound bool
	requestID string
	streamID string
	targetWindow wire.Endpoint
	targetOrigin string
	send func(f *frame.Frame) bool
	unregPull func()

	credit chan int
	startErr chan error
	started bool
}

// NewWritable constructs a data stream with the given options.
func NewWritable(opts WritableOptions) *Writable {
	return &Writable{opts: opts, state: StatePending, credit: make(chan int, 64)}
}

func (w *Writable) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Writable) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writable) StreamID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streamID
}

// Bind captures the peer this stream sends to.
func (w *Writable) Bind(args BindArgs) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requestID = args.RequestID
	w.streamID = args.StreamID
	w.targetWindow = args.TargetWindow
	w.targetOrigin = args.TargetOrigin
	w.send = args.Send
	w.bound = true

	if args.RegisterPull != nil {
		w.unregPull = args.RegisterPull(func(n int) {
			select {
			case w.credit <- n:
			default:
				// a producer that never drains credit is already broken;
				// drop rather than block the dispatcher goroutine.
			}
		})
	}
}

func (w *Writable) peerAvailable() bool {
	return w.targetWindow != nil && w.targetWindow.Available()
}

// Start emits stream_start, then pulls chunks on receiver-granted credit until the
// producer is exhausted, errors, the peer cancels, or the peer window disappears.
// If Chunked is false the entire payload is sent as one stream_data{done:true} with no
// credit wait.
func (w *Writable) Start(ctx context.Context) error {
	w.mu.Lock()
	if !w.bound {
		w.mu.Unlock()
		return fmt.Errorf("stream: Start called before Bind")
	}
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("stream: Start called twice")
	}
	w.started = true
	w.state = StateActive
	send := w.send
	streamID := w.streamID
	w.mu.Unlock()

	if !w.peerAvailable() {
		w.transition(StateCancelled, nil)
		return fmt.Errorf("stream: target window unavailable")
	}

	send(&frame.Frame{
		Type: frame.StreamStart,
		Body: frame.StreamStartBody{
			StreamID: streamID,
			Kind: w.opts.Kind,
			Chunked: w.opts.Chunked,
			Metadata: w.opts.Metadata,
			AutoResolve: w.opts.AutoResolve,
		},
	})

	if !w.opts.Chunked {
		return w.sendSingleShot(send, streamID)
	}
	return w.pumpChunked(ctx, send, streamID)
}

func (w *Writable) sendSingleShot(send func(*frame.Frame) bool, streamID string) error {
	if w.opts.Producer == nil {
		send(&frame.Frame{Type: frame.StreamData, Body: frame.StreamDataBody{StreamID: streamID, Done: true}})
		w.transition(StateEnded, nil)
		return nil
	}
	chunk, err := w.opts.Producer.Next(context.Background())
	if err != nil {
		send(&frame.Frame{Type: frame.StreamError, Body: frame.StreamErrorBody{StreamID: streamID, Message: err.Error()}})
		w.transition(StateError, err)
		return err
	}
	if !w.peerAvailable() {
		w.transition(StateCancelled, nil)
		return fmt.Errorf("stream: target window unavailable")
	}
	metrics.AddStreamBytes("out", chunkByteSize(chunk.Data))
	send(&frame.Frame{Type: frame.StreamData, Body: frame.StreamDataBody{StreamID: streamID, Data: chunk.Data, Done: true}})
	w.transition(StateEnded, nil)
	return nil
}

func (w *Writable) pumpChunked(ctx context.Context, send func(*frame.Frame) bool, streamID string) error {
	for {
		select {
		case <-ctx.Done():
			w.transition(StateCancelled, ctx.Err())
			return ctx.Err()
		case n := <-w.credit:
			for i := 0; i < n; i++ {
				if !w.peerAvailable() {
					w.transition(StateCancelled, nil)
					return fmt.Errorf("stream: target window unavailable")
				}
				chunk, err := w.next(ctx)
				if err != nil {
					send(&frame.Frame{Type: frame.StreamError, Body: frame.StreamErrorBody{StreamID: streamID, Message: err.Error()}})
					w.transition(StateError, err)
					return err
				}
				metrics.AddStreamBytes("out", chunkByteSize(chunk.Data))
				send(&frame.Frame{Type: frame.StreamData, Body: frame.StreamDataBody{StreamID: streamID, Data: chunk.Data, Done: chunk.Done}})
				if chunk.Done {
					send(&frame.Frame{Type: frame.StreamEnd, Body: frame.StreamEndBody{StreamID: streamID}})
					w.transition(StateEnded, nil)
					return nil
				}
			}
		}
	}
}

func (w *Writable) next(ctx context.Context) (Chunk, error) {
	if w.opts.Producer == nil {
		return Chunk{Done: true}, nil
	}
	return w.opts.Producer.Next(ctx)
}

// Cancel emits stream_cancel and transitions to Cancelled, unless already ended/error.
func (w *Writable) Cancel(reason string) {
	w.mu.Lock()
	if w.state == StateEnded || w.state == StateError || w.state == StateCancelled {
		w.mu.Unlock()
		return
	}
	send := w.send
	streamID := w.streamID
	w.mu.Unlock()

	if send != nil {
		send(&frame.Frame{Type: frame.StreamCancel, Body: frame.StreamCancelBody{StreamID: streamID, Reason: reason}})
	}
	w.transition(StateCancelled, nil)
}

func (w *Writable) transition(s State, err error) {
	w.mu.Lock()
	w.state = s
	if err != nil {
		w.err = err
	}
	unreg := w.unregPull
	w.mu.Unlock()
	if (s == StateEnded || s == StateError || s == StateCancelled) && unreg != nil {
		unreg()
	}
}
