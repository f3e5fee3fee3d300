// Package client is the caller-facing object bound to one peer window: send(path,
// body) returns a Response once the peer's server answers, honoring cookies and the
// request/response interceptor chain. The browser-specific "bind to an iframe element"
// factory is left to callers; Client itself only needs a wire.Endpoint.
package client

import (
	"context"
	"time"

	"github.com/winbridge/winbridge/cookiejar"
	"github.com/winbridge/winbridge/facade"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/inbox"
	"github.com/winbridge/winbridge/internal/idgen"
	"github.com/winbridge/winbridge/internal/xerr"
	"github.com/winbridge/winbridge/interceptor"
	"github.com/winbridge/winbridge/stream"
)

// Response is what Send resolves with on success.
type Response struct {
	Data       any
	Status     int
	StatusText string
	RequestID  string
	Headers    map[string]string
}

// FileResponse is the reassembled body of a streamed file-kind reply (the server
// having answered via resp.SendFile rather than resp.Send): Data on the resolved
// Response holds one of these once the underlying stream_data chunks are fully
// received and base64-decoded.
type FileResponse struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// SendOptions configures one Send call.
type SendOptions struct {
	TargetID   string
	Headers    map[string]string
	RequireAck bool
	Timeout    time.Duration
}

// Client wraps a Facade with interceptors and a cookie jar.
type Client struct {
	f            *facade.Facade
	Interceptors *interceptor.Chain
	Cookies      *cookiejar.Jar
}

// New constructs a Client around an already-built Facade (see facade.New).
func New(f *facade.Facade) *Client {
	return &Client{f: f, Interceptors: interceptor.New(), Cookies: cookiejar.New()}
}

func (c *Client) Open()  { c.f.Open() }
func (c *Client) Close() { c.f.Close() }

// Destroy tears down the Client's Facade and releases its Channel reference.
func (c *Client) Destroy() { c.f.Destroy() }

func (c *Client) IsOpen() bool      { return c.f.IsOpen() }
func (c *Client) IsConnect() bool   { return c.f.IsConnect() }
func (c *Client) ID() string        { return c.f.Hub.SelfID }

// Send issues a REQUEST to path and blocks for the terminal response/error.
func (c *Client) Send(ctx context.Context, path string, body any, opts SendOptions) (*Response, error) {
	if opts.Timeout == 0 {
		opts.Timeout = c.f.Hub.Cfg.RequestTimeout
	}
	reqID := idgen.New()

	transformed, err := c.Interceptors.RunRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	f := &frame.Frame{
		Path:       path,
		Data:       transformed,
		Headers:    opts.Headers,
		Cookies:    cookiesFor(c.Cookies, path),
		RequireAck: opts.RequireAck,
		TargetID:   opts.TargetID,
	}

	resultCh := c.f.Inbox.Register(ctx, reqID, opts.Timeout, inbox.Callbacks{
		OnAsync:       func() { c.f.Inbox.ExtendAsync(reqID, c.f.Hub.Cfg.AsyncTimeout) },
		OnStreamStart: func(start *frame.Frame) { c.receiveStreamedReply(reqID, start) },
	})

	if !c.f.Outbox.SendMessage(frame.Request, reqID, f) {
		return nil, xerr.New(xerr.TargetWindowClosed, reqID, "target window unavailable for %s", path)
	}

	var res inbox.Result
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return c.resolve(ctx, res)
}

func (c *Client) resolve(ctx context.Context, res inbox.Result) (*Response, error) {
	switch res.Kind {
	case inbox.KindResponse:
		resp := &Response{
			Data:       res.Frame.Data,
			Status:     res.Frame.Status,
			StatusText: res.Frame.StatusText,
			RequestID:  res.Frame.RequestID,
			Headers:    res.Frame.Headers,
		}
		applyCookies(c.Cookies, res.Frame.Cookies)
		out, err := c.Interceptors.RunResponse(ctx, resp, nil)
		if err != nil {
			return nil, err
		}
		return out.(*Response), nil
	default:
		_, err := c.Interceptors.RunResponse(ctx, nil, res.Err)
		if err != nil {
			return nil, err
		}
		return nil, res.Err
	}
}

// SendStream issues a REQUEST whose body is streamed rather than inline: the REQUEST
// frame carries path and streamId, and w is bound to that same streamId and started
// once the REQUEST itself is on the wire. It blocks until the server's response (or an
// error) resolves, the same as Send.
func (c *Client) SendStream(ctx context.Context, path string, w *stream.Writable, opts SendOptions) error {
	if opts.Timeout == 0 {
		opts.Timeout = c.f.Hub.Cfg.RequestTimeout
	}
	reqID := idgen.New()
	streamID := idgen.New()

	f := &frame.Frame{
		Path:       path,
		StreamID:   streamID,
		Headers:    opts.Headers,
		Cookies:    cookiesFor(c.Cookies, path),
		RequireAck: opts.RequireAck,
		TargetID:   opts.TargetID,
	}

	resultCh := c.f.Inbox.Register(ctx, reqID, opts.Timeout, inbox.Callbacks{})
	if !c.f.Outbox.SendMessage(frame.Request, reqID, f) {
		return xerr.New(xerr.TargetWindowClosed, reqID, "target window unavailable for %s", path)
	}

	if err := c.f.Outbox.SendStream(ctx, reqID, w, stream.SendOptions{StreamID: streamID, AwaitStart: true}); err != nil {
		return err
	}

	select {
	case res := <-resultCh:
		if res.Kind != inbox.KindResponse {
			return res.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cookiesFor(jar *cookiejar.Jar, path string) []frame.Cookie {
	all := jar.All(path)
	if len(all) == 0 {
		return nil
	}
	out := make([]frame.Cookie, len(all))
	for i, c := range all {
		out[i] = c.String()
	}
	return out
}

func applyCookies(jar *cookiejar.Jar, cookies []frame.Cookie) {
	for _, raw := range cookies {
		name, value := splitCookie(raw)
		if name == "" {
			continue
		}
		if value == cookiejar.Deleted {
			jar.Delete(name, "/")
			continue
		}
		jar.Set(cookiejar.Cookie{Name: name, Value: value, Path: "/"})
	}
}

// receiveStreamedReply handles a server reply that arrived via stream_start instead of
// a plain RESPONSE frame (resp.SendFile/SendStream rather than resp.Send): for a
// file-kind or autoResolve stream it binds a stream.Readable to the declared streamId
// and resolves reqID's waiter itself once the stream ends, since a streamed reply
// carries no terminal RESPONSE frame of its own. Any other stream is neither bound nor
// resolved here.
func (c *Client) receiveStreamedReply(reqID string, start *frame.Frame) {
	body, ok := start.StreamStart()
	if !ok {
		return
	}
	streamID, ok := frame.StreamIDOf(start)
	if !ok {
		return
	}
	send := func(f *frame.Frame) bool {
		f.TargetID = start.CreatorID
		return c.f.Outbox.SendMessage(f.Type, reqID, f)
	}

	if body.Kind == "file" {
		stream.ReceiveFile(c.f.Stream, streamID, body.Chunked, c.f.Hub.Cfg.StreamPullCredit, body.Metadata, send,
			func(res *stream.FileResult, err error) {
				if err != nil {
					c.f.Inbox.Finish(reqID, inbox.Result{Kind: inbox.KindError, Err: err})
					return
				}
				c.f.Inbox.Finish(reqID, inbox.Result{Kind: inbox.KindResponse, Frame: &frame.Frame{
					RequestID: reqID,
					Data:      FileResponse{Name: res.Name, MimeType: res.MimeType, Bytes: res.Bytes},
				}})
			})
		return
	}

	if !body.AutoResolve {
		// The handler wants a raw stream.Readable of its own rather than an
		// auto-reassembled Response; it must bind one itself off the request's
		// streamId, c.f.Stream being shared for exactly that purpose.
		return
	}

	var chunks []any
	rd := stream.NewReadable(stream.ReadableOptions{
		Credit: c.f.Hub.Cfg.StreamPullCredit,
		OnData: func(data any, done bool) { chunks = append(chunks, data) },
		OnEnd: func() {
			c.f.Inbox.Finish(reqID, inbox.Result{Kind: inbox.KindResponse, Frame: &frame.Frame{
				RequestID: reqID,
				Data:      chunks,
			}})
		},
		OnError: func(message string) {
			c.f.Inbox.Finish(reqID, inbox.Result{Kind: inbox.KindError, Err: xerr.New(xerr.RequestError, reqID, "%s", message)})
		},
	})
	rd.Bind(c.f.Stream, streamID, body.Chunked, send)
}

func splitCookie(raw string) (name, value string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			return raw[:i], raw[i+1:]
		}
	}
	return "", ""
}
