package client_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/client"
	"github.com/winbridge/winbridge/cookiejar"
	"github.com/winbridge/winbridge/facade"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/xerr"
	"github.com/winbridge/winbridge/response"
	"github.com/winbridge/winbridge/server"
	"github.com/winbridge/winbridge/stream"
	"github.com/winbridge/winbridge/wire"
)

var _ = Describe("Client", func() {
	var a, b *wire.LocalBus
	var fA *facade.Facade
	var fB *facade.Facade
	var c *client.Client
	var srv *server.Server

	BeforeEach(func() {
		a, b = wire.NewPair("https://a.example", "https://b.example")
		cache := channel.NewCache()

		fB = facade.New(facade.Options{
			Cache: cache, Self: b, Role: frame.RoleServer,
			Target: a, TargetOrigin: "https://a.example",
		})
		fA = facade.New(facade.Options{
			Cache: cache, Self: a, Role: frame.RoleClient,
			Target: b, TargetOrigin: "https://b.example", TargetID: fB.Hub.SelfID,
		})

		srv = server.FromFacade(fB)
		c = client.New(fA)

		fA.Open()
		fB.Open()
	})

	It("resolves a successful Send with the handler's return value", func() {
		srv.Handle("/greet", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return map[string]any{"greeting": "hi " + req.Data.(string)}, nil
		})

		resp, err := c.Send(context.Background(), "/greet", "world", client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(200))
		Expect(resp.Data).To(Equal(map[string]any{"greeting": "hi world"}))
	})

	It("surfaces a 404 as a MethodNotFound error for an unregistered path", func() {
		_, err := c.Send(context.Background(), "/missing", nil, client.SendOptions{})
		Expect(err).To(HaveOccurred())
		code, ok := xerr.CodeOf(err)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(xerr.MethodNotFound))
	})

	It("runs request interceptors before the request is sent", func() {
		srv.Handle("/echo", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return req.Data, nil
		})
		c.Interceptors.UseRequest(func(ctx context.Context, req any) (any, error) {
			return req.(string) + "-stamped", nil
		})

		resp, err := c.Send(context.Background(), "/echo", "body", client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Data).To(Equal("body-stamped"))
	})

	It("runs response interceptors after the response arrives", func() {
		srv.Handle("/echo", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return req.Data, nil
		})
		c.Interceptors.UseResponse(func(ctx context.Context, resp any, err error) (any, error) {
			r := resp.(*client.Response)
			r.Data = "intercepted"
			return r, err
		})

		resp, err := c.Send(context.Background(), "/echo", "body", client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Data).To(Equal("intercepted"))
	})

	It("fails when the target window is closed", func() {
		b.Close()
		_, err := c.Send(context.Background(), "/greet", "x", client.SendOptions{Timeout: 30 * time.Millisecond})
		Expect(err).To(HaveOccurred())
	})

	It("captures cookies set by the server for future requests to the same path", func() {
		srv.Handle("/login", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			resp.SetCookie(cookiejar.Cookie{Name: "session", Value: "abc123", Path: "/"})
			return "ok", nil
		})
		srv.Handle("/profile", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			return req.Frame.Cookies, nil
		})

		_, err := c.Send(context.Background(), "/login", nil, client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())

		resp, err := c.Send(context.Background(), "/profile", nil, client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		cookies := resp.Data.([]frame.Cookie)
		Expect(cookies).To(ContainElement("session=abc123"))
	})

	It("deletes a previously-captured cookie once the server clears it", func() {
		srv.Handle("/login", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			resp.SetCookie(cookiejar.Cookie{Name: "session", Value: "abc123", Path: "/"})
			return "ok", nil
		})
		srv.Handle("/logout", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			resp.ClearCookie("session", "/")
			return "ok", nil
		})

		_, err := c.Send(context.Background(), "/login", nil, client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())
		_, ok := c.Cookies.Get("session", "/")
		Expect(ok).To(BeTrue())

		_, err = c.Send(context.Background(), "/logout", nil, client.SendOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, ok = c.Cookies.Get("session", "/")
		Expect(ok).To(BeFalse())
	})

	It("reassembles a file reply sent via resp.SendFile into Response.Data", func() {
		srv.Handle("/download", func(ctx context.Context, req *server.Request, resp *response.Response) (any, error) {
			payload := &stream.FilePayload{
				Name: "report.txt", MimeType: "text/plain",
				Bytes: []byte("hello from the server"),
			}
			return nil, resp.SendFile(ctx, payload, stream.WritableOptions{AutoResolve: true})
		})

		resp, err := c.Send(context.Background(), "/download", nil, client.SendOptions{Timeout: 2 * time.Second})
		Expect(err).NotTo(HaveOccurred())

		file, ok := resp.Data.(client.FileResponse)
		Expect(ok).To(BeTrue())
		Expect(file.Name).To(Equal("report.txt"))
		Expect(file.MimeType).To(Equal("text/plain"))
		Expect(string(file.Bytes)).To(Equal("hello from the server"))
	})
})
