// Package response builds the outgoing reply to one REQUEST: status, headers,
// cookies, a body (plain data, a stream, or a file), and optionally waits for the
// peer's ack before a handler's send call returns.
package response

import (
	"context"
	"time"

	"github.com/winbridge/winbridge/cookiejar"
	"github.com/winbridge/winbridge/dispatcher"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/inbox"
	"github.com/winbridge/winbridge/internal/xerr"
	"github.com/winbridge/winbridge/stream"
	"github.com/winbridge/winbridge/wire"
)

// Response accumulates a reply for one request before Send/Json/SendFile/SendStream
// transmits it.
type Response struct {
	d            *dispatcher.Dispatcher
	ib           *inbox.Inbox
	target       wire.Endpoint
	targetOrigin string
	creatorID    string // the request's CreatorID, becomes this reply's TargetID
	requestID    string

	status     int
	statusText string
	headers    map[string]string
	cookies    []cookiejar.Cookie
	requireAck bool
	sent       bool
	async      bool
}

func New(d *dispatcher.Dispatcher, ib *inbox.Inbox, target wire.Endpoint, targetOrigin, creatorID, requestID string) *Response {
	return &Response{
		d: d, ib: ib, target: target, targetOrigin: targetOrigin,
		creatorID: creatorID, requestID: requestID,
		status: 200, headers: map[string]string{},
	}
}

func (r *Response) Status(code int, text string) *Response {
	r.status, r.statusText = code, text
	return r
}

func (r *Response) SetHeader(key, value string) *Response {
	r.headers[key] = value
	return r
}

func (r *Response) SetCookie(c cookiejar.Cookie) *Response {
	r.cookies = append(r.cookies, c)
	return r
}

// ClearCookie appends a tombstone for (name, path): the peer's jar deletes its own
// entry on receipt (see client.applyCookies) rather than storing the sentinel value
// itself, giving cookie/clearCookie round-trip semantics over a wire shape that has no
// room for a real Set-Cookie expiry.
func (r *Response) ClearCookie(name, path string) *Response {
	r.cookies = append(r.cookies, cookiejar.Cookie{Name: name, Value: cookiejar.Deleted, Path: path})
	return r
}

// RequireAck marks the eventual outgoing frame as wanting the peer's dispatcher to
// auto-ACK it, which AwaitAck then waits on.
func (r *Response) RequireAck(v bool) *Response {
	r.requireAck = v
	return r
}

// StatusCode returns the status set so far via Status (200 if never called), so a
// caller adapting a handler error can tell whether one was explicitly chosen.
func (r *Response) StatusCode() int { return r.status }

func (r *Response) renderCookies() []frame.Cookie {
	if len(r.cookies) == 0 {
		return nil
	}
	out := make([]frame.Cookie, len(r.cookies))
	for i, c := range r.cookies {
		out[i] = c.String()
	}
	return out
}

func (r *Response) base(typ frame.Type) *frame.Frame {
	return &frame.Frame{
		TargetID:   r.creatorID,
		Status:     r.status,
		StatusText: r.statusText,
		Headers:    r.headers,
		Cookies:    r.renderCookies(),
		RequireAck: r.requireAck,
	}
}

// Send transmits data as a plain RESPONSE frame.
func (r *Response) Send(data any) bool {
	if r.sent {
		return false
	}
	r.sent = true
	f := r.base(frame.Response)
	f.Data = data
	return r.d.SendMessage(r.target, r.targetOrigin, frame.Response, r.requestID, f)
}

// Json is an alias for Send kept for callers migrating handler code that distinguishes
// a JSON body from an opaque one; the wire codec serializes both identically.
func (r *Response) Json(data any) bool { return r.Send(data) }

// Sent reports whether a terminal RESPONSE or ERROR frame has already gone out, so a
// middleware chain or handler wrapper knows whether it still owns the reply.
func (r *Response) Sent() bool { return r.sent }

// SendAsync tells the peer to switch from its REQUEST_TIMEOUT band to ASYNC_TIMEOUT
// without resolving the pending waiter; it does not mark the response sent, since the
// handler still owes a RESPONSE or ERROR later.
func (r *Response) SendAsync() bool {
	if r.sent {
		return false
	}
	f := r.base(frame.Async)
	return r.d.SendMessage(r.target, r.targetOrigin, frame.Async, r.requestID, f)
}

// SendError transmits an ERROR frame instead of a RESPONSE.
func (r *Response) SendError(code, message string) bool {
	if r.sent {
		return false
	}
	r.sent = true
	f := r.base(frame.Error)
	f.Error = &frame.ErrorBody{Message: message, Code: code}
	return r.d.SendMessage(r.target, r.targetOrigin, frame.Error, r.requestID, f)
}

// SendFile streams payload as the response body via the stream protocol, sending
// stream_start/stream_data/stream_end frames rather than a single RESPONSE frame.
func (r *Response) SendFile(ctx context.Context, payload *stream.FilePayload, opts stream.WritableOptions) error {
	if r.sent {
		return nil
	}
	r.sent = true
	w := stream.NewFileWritable(payload, opts)
	return r.SendStream(ctx, w, stream.SendOptions{AwaitStart: true})
}

// SendStream binds w to this response's peer and starts it.
func (r *Response) SendStream(ctx context.Context, w *stream.Writable, opts stream.SendOptions) error {
	streamID := opts.StreamID
	if streamID == "" {
		streamID = r.requestID
	}
	w.Bind(stream.BindArgs{
		RequestID:    r.requestID,
		StreamID:     streamID,
		TargetWindow: r.target,
		TargetOrigin: r.targetOrigin,
		TargetID:     r.creatorID,
		Send: func(f *frame.Frame) bool {
			f.TargetID = r.creatorID
			return r.d.SendMessage(r.target, r.targetOrigin, f.Type, r.requestID, f)
		},
		RegisterPull: opts.RegisterPull,
	})
	if opts.BeforeStart != nil {
		opts.BeforeStart()
	}
	if opts.AwaitStart {
		return w.Start(ctx)
	}
	go func() { _ = w.Start(ctx) }()
	return nil
}

// AwaitAck blocks until the peer's dispatcher auto-acks this response or timeout
// elapses; RequireAck(true) must have been set before Send/SendError/SendAsync for an
// ack to ever arrive.
func (r *Response) AwaitAck(timeout time.Duration) bool {
	acked := make(chan struct{}, 1)
	resultCh := r.ib.Register(nil, r.requestID, timeout, inbox.Callbacks{
		OnAck: func(*frame.Ack) { select { case acked <- struct{}{}: default: } },
	})
	select {
	case <-acked:
		return true
	case <-resultCh:
		return false
	case <-time.After(timeout):
		return false
	}
}

// IsAsync reports whether Async has already emitted this response's ASYNC frame, so
// the caller that invoked the handler knows not to also apply its own return-value
// adaptation once the handler returns.
func (r *Response) IsAsync() bool { return r.async }

// Async implements the thenable-handler translation for a handler that cannot answer
// within the request timeout: it sends ASYNC immediately, then runs fn on its own
// goroutine and adapts its eventual (value, err) into a reply via Resolve once it
// returns, the same as if that value had come back synchronously.
func (r *Response) Async(fn func() (any, error)) {
	if r.sent {
		return
	}
	r.async = true
	r.SendAsync()
	go func() {
		value, err := fn()
		r.Resolve(value, err)
	}()
}

// Resolve adapts a handler's terminal (value, err) into a reply: a non-nil error
// becomes an ERROR carrying its code (status resp.StatusCode() if it was changed from
// the 200 default, else 500) and message, a nil value becomes ERROR(NO_RESPONSE), and
// anything else becomes the RESPONSE body. A no-op if a reply already went out.
func (r *Response) Resolve(value any, err error) {
	if r.sent {
		return
	}
	if err != nil {
		status := r.StatusCode()
		if status == 200 {
			status = 500
		}
		code := string(xerr.RequestError)
		if c, ok := xerr.CodeOf(err); ok {
			code = string(c)
		}
		r.Status(status, "Request Error").SendError(code, err.Error())
		return
	}
	if value == nil {
		r.Status(500, "No Response").SendError(string(xerr.NoResponse), "handler produced no response")
		return
	}
	r.Send(value)
}
