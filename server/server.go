// Package server implements REQUEST routing: matching a frame's path/method against
// registered routes, running a middleware chain, and invoking the matched handler with
// a Request/Response pair.
package server

import (
	"context"
	"sync"

	"github.com/winbridge/winbridge/dispatcher"
	"github.com/winbridge/winbridge/facade"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/hub"
	"github.com/winbridge/winbridge/inbox"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/internal/nlog"
	"github.com/winbridge/winbridge/internal/xerr"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/response"
	"github.com/winbridge/winbridge/route"
)

// Request is what a Handler receives for one matched REQUEST frame.
type Request struct {
	Frame  *frame.Frame
	Path   string
	Params map[string]string
	Data   any
}

// Handler processes one matched request. It may send the reply itself via resp (for a
// streamed or file body, or to set headers/cookies before sending) and return nil, nil;
// or it may leave resp unsent and return a value/error for the server to adapt into a
// RESPONSE or ERROR frame.
type Handler func(ctx context.Context, req *Request, resp *response.Response) (any, error)

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(next Handler) Handler

// Server owns a route table and dispatches matched REQUEST frames to the registered
// handler, after running the middleware chain.
type Server struct {
	h   *hub.Hub
	ib  *inbox.Inbox
	cfg *config.Config

	table       *route.Table
	handlers    map[route.Entry]Handler
	middlewares []Middleware
}

// New constructs a Server bound to h; its Request handler registers during h's
// afterOpen phase.
func New(h *hub.Hub, ib *inbox.Inbox, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		h: h, ib: ib, cfg: cfg,
		table:    route.NewTable(),
		handlers: make(map[route.Entry]Handler),
	}
	h.OnAfterOpen(s.register)
	return s
}

// FromFacade builds a Server sharing f's Hub and Inbox, so the same composed object
// can both route incoming requests and, via f.Outbox, originate its own.
func FromFacade(f *facade.Facade) *Server {
	return New(f.Hub, f.Inbox, f.Hub.Cfg)
}

// Open/Close/Destroy are provided for symmetry with Client when a Server is built
// FromFacade and the caller only holds the *Server value.
func (s *Server) Open()    { s.h.Open() }
func (s *Server) Close()   { s.h.Close() }
func (s *Server) Destroy() { s.h.Destroy() }
func (s *Server) ID() string { return s.h.SelfID }

// Use appends a middleware, applied to every route in registration order (the first
// Use call becomes the outermost wrapper).
func (s *Server) Use(mw Middleware) { s.middlewares = append(s.middlewares, mw) }

// Handle registers h for pattern (":name" segments become route parameters, a
// trailing "*" makes it a prefix match).
func (s *Server) Handle(pattern string, h Handler) {
	e := s.table.Register(pattern)
	s.handlers[e] = h
}

func (s *Server) register() {
	opts := s.h.CreateHandlerOptions(100, s.onVersionError)
	s.h.RegisterHandler(dispatcher.ExactType(frame.Request), s.handleRequest, opts)
}

func (s *Server) onVersionError(f *frame.Frame, ctx *msgctx.Context, version int) {
	ctx.MarkAcceptedBy("server:version-error")
	if ctx.Source == nil {
		return
	}
	resp := response.New(s.h.Dispatcher, s.ib, ctx.Source, ctx.Origin, f.CreatorID, f.RequestID)
	resp.Status(505, "Protocol Version Unsupported").SendError(
		string(xerr.ProtocolUnsupported),
		"peer protocol version is unsupported",
	)
}

// handleRequest implements the server's request dispatch rules: ignore frames that
// don't belong to this server, yield to a co-resident server that already claimed it,
// resolve the route and 404 if none matches, claim and ack, build the Response and
// defer to an incoming request-body stream's start if one is carried, run the
// middleware chain, then adapt the handler's return into a reply.
func (s *Server) handleRequest(f *frame.Frame, ctx *msgctx.Context) {
	if f.Path == "" || ctx.Source == nil {
		return
	}
	if f.TargetID != "" && f.TargetID != s.h.SelfID {
		return
	}
	if ctx.HandledBy() != "" {
		return
	}

	m, ok := s.table.Match(f.Path)
	if !ok {
		ctx.MarkHandledBy("server:" + f.Path)
		resp := response.New(s.h.Dispatcher, s.ib, ctx.Source, ctx.Origin, f.CreatorID, f.RequestID)
		resp.Status(404, "Not Found").SendError(string(xerr.MethodNotFound), "no route matches "+f.Path)
		ctx.MarkAcceptedBy("server:" + f.Path)
		return
	}
	ctx.MarkHandledBy("server:" + f.Path)

	s.h.Dispatcher.Send(ctx.Source, &frame.Frame{TargetID: f.CreatorID}, ctx.Origin, frame.Ack, f.RequestID, false)

	h := s.handlers[m.Entry]
	req := &Request{Frame: f, Path: f.Path, Params: m.Params, Data: f.Data}
	resp := response.New(s.h.Dispatcher, s.ib, ctx.Source, ctx.Origin, f.CreatorID, f.RequestID)

	chain := s.buildChain(h)
	reqCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)

	if _, hasStream := frame.StreamIDOf(f); hasStream {
		// The handler must not run until the body's stream_start frame arrives, and
		// waiting here inline would block the very dispatch call that has to deliver
		// that frame, so the wait runs on its own goroutine.
		go func() {
			defer cancel()
			s.awaitStreamStart(reqCtx, f.RequestID)
			s.runHandler(chain, reqCtx, req, resp)
			ctx.MarkAcceptedBy("server:" + f.Path)
		}()
		return
	}

	defer cancel()
	s.runHandler(chain, reqCtx, req, resp)
	ctx.MarkAcceptedBy("server:" + f.Path)
}

// awaitStreamStart blocks until the peer's stream_start frame for this request arrives
// or ctx is done, turning the REQUEST's declared body stream into a readable one before
// the handler ever sees it. If the start never arrives, the caller proceeds anyway --
// the handler receives an empty body rather than hanging forever.
func (s *Server) awaitStreamStart(ctx context.Context, requestID string) {
	started := make(chan struct{})
	var once sync.Once
	resultCh := s.ib.Register(ctx, requestID, s.cfg.RequestTimeout, inbox.Callbacks{
		OnStreamStart: func(*frame.Frame) { once.Do(func() { close(started) }) },
	})
	select {
	case <-started:
	case <-resultCh:
	case <-ctx.Done():
	}
}

func (s *Server) buildChain(h Handler) Handler {
	chain := h
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](chain)
	}
	return chain
}

// runHandler invokes h and, unless it already claimed the reply itself (Sent, or its
// Async path already under way), adapts its return into one via resp.Resolve: a panic
// becomes a 500 REQUEST_ERROR first.
func (s *Server) runHandler(h Handler, ctx context.Context, req *Request, resp *response.Response) {
	var value any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("server: handler panic on %s: %v", req.Path, r)
				err = xerr.New(xerr.RequestError, req.Frame.RequestID, "handler panic: %v", r)
			}
		}()
		value, err = h(ctx, req, resp)
	}()

	if resp.IsAsync() {
		return
	}
	resp.Resolve(value, err)
}
