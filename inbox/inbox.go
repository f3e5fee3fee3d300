// Package inbox implements the client-side half of request/response correlation: for
// every outgoing REQUEST a waiter is registered under its requestId, and incoming
// ack/async/response/error/stream_start/pong/ping frames are routed back to it.
package inbox

import (
	"context"
	"time"

	"github.com/winbridge/winbridge/dispatcher"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/hub"
	"github.com/winbridge/winbridge/internal/nlog"
	"github.com/winbridge/winbridge/internal/xerr"
	"github.com/winbridge/winbridge/msgctx"
)

const requestBucket = "requests"

// Kind identifies which terminal frame resolved a waiter.
type Kind int

const (
	KindResponse Kind = iota
	KindError
	KindTimeout
)

// Result is what the channel returned by Register receives once a request reaches a
// terminal state.
type Result struct {
	Kind  Kind
	Frame *frame.Frame
	Err   error
}

// waiter tracks one in-flight request. ack/async arriving do not resolve it -- only
// response, error, a timeout, or an explicit Finish do. StreamStart notifications are
// forwarded via onStreamStart without touching the waiter's lifecycle; a streamed reply
// carries no terminal response frame, so whoever consumes the stream calls Finish.
type waiter struct {
	requestID     string
	resultCh      chan Result
	onAck         func(*frame.Ack)
	onAsync       func()
	onStreamStart func(*frame.Frame)
	cancelTimeout func()
}

// Inbox is the client-side correlation table, registered against one Hub.
type Inbox struct {
	h *hub.Hub
}

// New builds an Inbox and registers its handlers on h. Call during Hub's afterOpen
// phase (via hub.OnAfterOpen) so registration happens exactly once per Open.
func New(h *hub.Hub) *Inbox {
	ib := &Inbox{h: h}
	h.OnAfterOpen(ib.register)
	return ib
}

func (ib *Inbox) register() {
	opts := ib.h.CreateHandlerOptions(100, ib.onVersionError)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.Ack), ib.handleAck, opts)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.Async), ib.handleAsync, opts)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.Response), ib.handleResponse, opts)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.Error), ib.handleError, opts)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.StreamStart), ib.handleStreamStart, opts)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.Pong), ib.handlePong, opts)
	ib.h.RegisterHandler(dispatcher.ExactType(frame.Ping), ib.handlePing, opts)
}

func (ib *Inbox) onVersionError(f *frame.Frame, ctx *msgctx.Context, version int) {
	ctx.MarkAcceptedBy("inbox:version-error")
	w, ok := ib.lookup(f.RequestID)
	if !ok {
		return
	}
	ib.finish(f.RequestID, Result{Kind: KindError, Frame: f, Err: xerr.New(xerr.ProtocolUnsupported, f.RequestID, "peer protocol version %d unsupported", version)})
	_ = w
}

func (ib *Inbox) bucket() *hub.Bucket { return ib.h.Pending.Map(requestBucket) }

func (ib *Inbox) lookup(requestID string) (*waiter, bool) {
	v, ok := ib.bucket().Get(requestID)
	if !ok {
		return nil, false
	}
	w, ok := v.(*waiter)
	return w, ok
}

// Register creates a waiter for requestID with the given total timeout, returning a
// channel that receives exactly one Result. cb receives optional ack/async/
// stream-start notifications as they arrive; any of its fields may be nil.
type Callbacks struct {
	OnAck         func(*frame.Ack)
	OnAsync       func()
	OnStreamStart func(*frame.Frame)
}

func (ib *Inbox) Register(ctx context.Context, requestID string, timeout time.Duration, cb Callbacks) <-chan Result {
	resultCh := make(chan Result, 1)
	w := &waiter{
		requestID:     requestID,
		resultCh:      resultCh,
		onAck:         cb.OnAck,
		onAsync:       cb.OnAsync,
		onStreamStart: cb.OnStreamStart,
	}
	w.cancelTimeout = ib.h.Pending.SetTimeout(timeout, func() {
		ib.finish(requestID, Result{Kind: KindTimeout, Err: xerr.New(xerr.Timeout, requestID, "request timed out after %s", timeout)})
	})
	ib.bucket().Set(requestID, w)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			ib.finish(requestID, Result{Kind: KindTimeout, Err: ctx.Err()})
		}()
	}
	return resultCh
}

// ExtendAsync swaps a waiter's remaining timeout to asyncTimeout; called when an
// ASYNC frame arrives to signal the eventual response may take much longer.
func (ib *Inbox) ExtendAsync(requestID string, asyncTimeout time.Duration) {
	w, ok := ib.lookup(requestID)
	if !ok {
		return
	}
	if w.cancelTimeout != nil {
		w.cancelTimeout()
	}
	w.cancelTimeout = ib.h.Pending.SetTimeout(asyncTimeout, func() {
		ib.finish(requestID, Result{Kind: KindTimeout, Err: xerr.New(xerr.AsyncTimeout, requestID, "async request timed out after %s", asyncTimeout)})
	})
}

// Finish resolves requestID's waiter directly with res. It exists for callers that
// terminate a request themselves outside the ack/async/response/error/pong frame flow
// -- a client reassembling a streamed file reply, for instance, which ends in
// stream_end rather than its own response frame.
func (ib *Inbox) Finish(requestID string, res Result) {
	ib.finish(requestID, res)
}

func (ib *Inbox) finish(requestID string, res Result) {
	w, ok := ib.lookup(requestID)
	if !ok {
		return
	}
	ib.bucket().Delete(requestID)
	if w.cancelTimeout != nil {
		w.cancelTimeout()
	}
	select {
	case w.resultCh <- res:
	default:
	}
}

func (ib *Inbox) handleAck(f *frame.Frame, ctx *msgctx.Context) {
	ctx.MarkAcceptedBy("inbox:ack")
	w, ok := ib.lookup(f.RequestID)
	if !ok {
		return
	}
	if w.onAck != nil {
		w.onAck(f.Ack)
	}
}

func (ib *Inbox) handleAsync(f *frame.Frame, ctx *msgctx.Context) {
	ctx.MarkAcceptedBy("inbox:async")
	w, ok := ib.lookup(f.RequestID)
	if !ok {
		return
	}
	if w.onAsync != nil {
		w.onAsync()
	}
}

func (ib *Inbox) handleStreamStart(f *frame.Frame, ctx *msgctx.Context) {
	w, ok := ib.lookup(f.RequestID)
	if !ok {
		return
	}
	ctx.MarkAcceptedBy("inbox:stream-start")
	if w.onStreamStart != nil {
		w.onStreamStart(f)
	}
}

func (ib *Inbox) handleResponse(f *frame.Frame, ctx *msgctx.Context) {
	ctx.MarkAcceptedBy("inbox:response")
	ib.finish(f.RequestID, Result{Kind: KindResponse, Frame: f})
}

func (ib *Inbox) handleError(f *frame.Frame, ctx *msgctx.Context) {
	ctx.MarkAcceptedBy("inbox:error")
	var msg, code string
	if f.Error != nil {
		msg, code = f.Error.Message, f.Error.Code
	}
	ib.finish(f.RequestID, Result{Kind: KindError, Frame: f, Err: xerr.New(xerr.Code(code), f.RequestID, "%s", msg)})
}

// handlePong resolves a heartbeat waiter registered by the heartbeat package under the
// same Pending table, bucket "heartbeat_pong". It does not resolve request waiters.
func (ib *Inbox) handlePong(f *frame.Frame, ctx *msgctx.Context) {
	b := ib.h.Pending.Map("heartbeat_pong")
	v, ok := b.Get(f.RequestID)
	if !ok {
		return
	}
	ctx.MarkAcceptedBy("inbox:pong")
	if cb, ok := v.(func()); ok {
		b.Delete(f.RequestID)
		cb()
	}
}

// handlePing answers any incoming ping with a pong carrying the same requestId,
// independent of role -- both client and server heartbeat each other.
func (ib *Inbox) handlePing(f *frame.Frame, ctx *msgctx.Context) {
	target := ctx.Source
	origin := ctx.Origin
	if target == nil {
		return
	}
	ctx.MarkAcceptedBy("inbox:ping")
	ok := ib.h.Dispatcher.Send(target, &frame.Frame{TargetID: f.CreatorID}, origin, frame.Pong, f.RequestID, false)
	if !ok {
		nlog.Warningf("inbox: failed to pong %s", f.RequestID)
	}
}
