package server_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/hub"
	"github.com/winbridge/winbridge/inbox"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/internal/xerr"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/response"
	"github.com/winbridge/winbridge/server"
	"github.com/winbridge/winbridge/wire"
)

var _ = Describe("Server", func() {
	var a, b *wire.LocalBus
	var h *hub.Hub
	var srv *server.Server
	var gotFrames []*frame.Frame

	BeforeEach(func() {
		a, b = wire.NewPair("https://a.example", "https://b.example")
		cfg := config.Default()

		cache := channel.NewCache()
		h = hub.New(cache, a, frame.RoleServer, cfg)
		ib := inbox.New(h)
		srv = server.New(h, ib, cfg)

		gotFrames = nil
		chB := channel.New(b, "")
		chB.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { gotFrames = append(gotFrames, f) })

		h.Open()
	})

	request := func(path string, requireAck bool) {
		a.Post(frame.ToWireMessage(&frame.Frame{
			ProtocolVersion: frame.CurrentVersion,
			Type:            frame.Request,
			RequestID:       "r1",
			Role:            frame.RoleClient,
			CreatorID:       "client-1",
			Path:            path,
		}), "https://b.example", b)
	}

	byType := func(typ frame.Type) *frame.Frame {
		for _, f := range gotFrames {
			if f.Type == typ {
				return f
			}
		}
		return nil
	}

	It("404s when no route matches", func() {
		srv.Handle("/users", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return "ok", nil
		})

		request("/missing", false)

		errFrame := byType(frame.Error)
		Expect(errFrame).NotTo(BeNil())
		Expect(errFrame.Status).To(Equal(404))
		Expect(errFrame.Error.Code).To(Equal(string(xerr.MethodNotFound)))
	})

	It("acks then sends the handler's return value as a RESPONSE", func() {
		srv.Handle("/users/:id", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return map[string]string{"id": req.Params["id"]}, nil
		})

		request("/users/42", false)

		Expect(byType(frame.Ack)).NotTo(BeNil())
		respFrame := byType(frame.Response)
		Expect(respFrame).NotTo(BeNil())
		Expect(respFrame.Status).To(Equal(200))
	})

	It("adapts a handler error into an ERROR frame with status 500", func() {
		srv.Handle("/boom", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return nil, errors.New("kaboom")
		})

		request("/boom", false)

		errFrame := byType(frame.Error)
		Expect(errFrame).NotTo(BeNil())
		Expect(errFrame.Status).To(Equal(500))
		Expect(errFrame.Error.Code).To(Equal(string(xerr.RequestError)))
	})

	It("propagates a coded error's specific code and status", func() {
		srv.Handle("/coded", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			resp.Status(403, "Forbidden")
			return nil, xerr.New(xerr.RequestError, "r1", "nope")
		})

		request("/coded", false)

		errFrame := byType(frame.Error)
		Expect(errFrame.Status).To(Equal(403))
	})

	It("turns a nil handler return into a NO_RESPONSE error", func() {
		srv.Handle("/empty", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return nil, nil
		})

		request("/empty", false)

		errFrame := byType(frame.Error)
		Expect(errFrame).NotTo(BeNil())
		Expect(errFrame.Error.Code).To(Equal(string(xerr.NoResponse)))
	})

	It("recovers a handler panic into a REQUEST_ERROR", func() {
		srv.Handle("/panic", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			panic("boom")
		})

		request("/panic", false)

		errFrame := byType(frame.Error)
		Expect(errFrame).NotTo(BeNil())
		Expect(errFrame.Status).To(Equal(500))
		Expect(errFrame.Error.Code).To(Equal(string(xerr.RequestError)))
	})

	It("does not adapt a return value once the handler already sent its own response", func() {
		srv.Handle("/manual", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			resp.Send("manual")
			return "ignored", nil
		})

		request("/manual", false)

		Expect(gotFrames).To(HaveLen(2)) // ack + the manual response
		respFrame := byType(frame.Response)
		Expect(respFrame.Data).To(Equal("manual"))
	})

	It("sends ASYNC immediately, then the handler's eventual value as a RESPONSE", func() {
		release := make(chan struct{})
		srv.Handle("/slow", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			resp.Async(func() (any, error) {
				<-release
				return map[string]any{"done": true}, nil
			})
			return nil, nil
		})

		request("/slow", false)

		Eventually(func() *frame.Frame { return byType(frame.Async) }).ShouldNot(BeNil())
		Expect(byType(frame.Response)).To(BeNil())

		close(release)

		Eventually(func() *frame.Frame { return byType(frame.Response) }).ShouldNot(BeNil())
		Expect(byType(frame.Response).Data).To(Equal(map[string]any{"done": true}))
	})

	It("wraps the handler chain with every registered middleware in Use order", func() {
		var order []string
		srv.Use(func(next server.Handler) server.Handler {
			return func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
				order = append(order, "outer-before")
				v, err := next(ctx, req, resp)
				order = append(order, "outer-after")
				return v, err
			}
		})
		srv.Use(func(next server.Handler) server.Handler {
			return func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
				order = append(order, "inner-before")
				v, err := next(ctx, req, resp)
				order = append(order, "inner-after")
				return v, err
			}
		})
		srv.Handle("/chain", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			order = append(order, "handler")
			return "ok", nil
		})

		request("/chain", false)

		Expect(order).To(Equal([]string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}))
	})

	It("ignores a REQUEST targeted at a different instance id", func() {
		srv.Handle("/users", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return "ok", nil
		})

		a.Post(frame.ToWireMessage(&frame.Frame{
			ProtocolVersion: frame.CurrentVersion,
			Type:            frame.Request,
			RequestID:       "r1",
			Role:            frame.RoleClient,
			CreatorID:       "client-1",
			Path:            "/users",
			TargetID:        "some-other-server",
		}), "https://b.example", b)

		Expect(gotFrames).To(BeEmpty())
	})
})
