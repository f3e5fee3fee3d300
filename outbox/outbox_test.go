package outbox_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/dispatcher"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/outbox"
	"github.com/winbridge/winbridge/wire"
)

var _ = Describe("Outbox", func() {
	var a, b *wire.LocalBus
	var d *dispatcher.Dispatcher
	var o *outbox.Outbox

	BeforeEach(func() {
		a, b = wire.NewPair("https://a.example", "https://b.example")
		ch := channel.New(a, "")
		d = dispatcher.New(ch, frame.RoleClient, "client-1", config.Default())
		o = outbox.New(d, b, "https://b.example", "server-1")
	})

	It("stamps the default TargetID on a message missing one", func() {
		var got *frame.Frame
		chB := channel.New(b, "")
		chB.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { got = f })

		ok := o.SendMessage(frame.Request, "r1", &frame.Frame{})
		Expect(ok).To(BeTrue())
		Expect(got).NotTo(BeNil())
		Expect(got.TargetID).To(Equal("server-1"))
	})

	It("leaves an explicit TargetID untouched", func() {
		var got *frame.Frame
		chB := channel.New(b, "")
		chB.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { got = f })

		o.SendMessage(frame.Request, "r1", &frame.Frame{TargetID: "other-server"})
		Expect(got.TargetID).To(Equal("other-server"))
	})

	Describe("Send", func() {
		It("routes a plain payload through OnOther", func() {
			var seen any
			err := o.Send("hello", outbox.SendOptions{
				OnOther: func(data any) error { seen = data; return nil },
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal("hello"))
		})

		It("runs Before, then End, then Finally on success", func() {
			var order []string
			err := o.Send("x", outbox.SendOptions{
				Before: func() { order = append(order, "before") },
				OnOther: func(data any) error { order = append(order, "other"); return nil },
				End: func() { order = append(order, "end") },
				Finally: func() { order = append(order, "finally") },
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(order).To(Equal([]string{"before", "other", "end", "finally"}))
		})

		It("routes a handler error through Error and skips End, but still runs Finally", func() {
			boom := errors.New("boom")
			var endCalled bool
			var finallyCalled bool
			err := o.Send("x", outbox.SendOptions{
				OnOther: func(data any) error { return boom },
				Error: func(err error) error { return err },
				End: func() { endCalled = true },
				Finally: func() { finallyCalled = true },
			})
			Expect(err).To(Equal(boom))
			Expect(endCalled).To(BeFalse())
			Expect(finallyCalled).To(BeTrue())
		})

		It("lets Error swallow the failure by returning nil", func() {
			err := o.Send("x", outbox.SendOptions{
				OnOther: func(data any) error { return errors.New("boom") },
				Error: func(err error) error { return nil },
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("TargetWindow/TargetOrigin", func() {
		It("report the peer this Outbox was constructed with", func() {
			Expect(o.TargetWindow()).To(Equal(wire.Endpoint(b)))
			Expect(o.TargetOrigin()).To(Equal("https://b.example"))
		})
	})
})
