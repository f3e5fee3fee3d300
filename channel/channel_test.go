package channel_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/wire"
)

func wellFormedFrame(secretKey string) *frame.Frame {
	return &frame.Frame{
		ProtocolVersion: frame.CurrentVersion,
		Type:            frame.Ping,
		RequestID:       "r1",
		SecretKey:       secretKey,
	}
}

var _ = Describe("Channel", func() {
	var a, b *wire.LocalBus

	BeforeEach(func() {
		a, b = wire.NewPair("https://a.example", "https://b.example")
	})

	It("delivers a well-formed, matching-secretKey frame to every receiver", func() {
		ch := channel.New(a, "tenant-1")
		var got *frame.Frame
		ch.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { got = f })

		ok := ch.Send(a, wellFormedFrame("tenant-1"), "https://a.example")
		Expect(ok).To(BeTrue())
		Expect(got).NotTo(BeNil())
		Expect(got.RequestID).To(Equal("r1"))
	})

	It("drops a frame whose secretKey does not match this Channel's", func() {
		ch := channel.New(a, "tenant-1")
		var calls int
		ch.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { calls++ })

		a.Post(frame.ToWireMessage(wellFormedFrame("tenant-2")), "https://a.example", nil)
		Expect(calls).To(Equal(0))
	})

	It("drops a structurally malformed delivery", func() {
		ch := channel.New(a, "")
		var calls int
		ch.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { calls++ })

		a.Post(&frame.Frame{Type: frame.Ping}, "", nil) // no RequestID/ProtocolVersion
		Expect(calls).To(Equal(0))
	})

	It("stops calling a receiver once its remove func has run", func() {
		ch := channel.New(a, "")
		var calls int
		remove := ch.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { calls++ })

		a.Post(frame.ToWireMessage(wellFormedFrame("")), "", nil)
		remove()
		a.Post(frame.ToWireMessage(wellFormedFrame("")), "", nil)

		Expect(calls).To(Equal(1))
	})

	It("isolates a panicking receiver so later receivers still run", func() {
		ch := channel.New(a, "")
		var ranSecond bool
		ch.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { panic("boom") })
		ch.AddReceiver(func(f *frame.Frame, ctx *msgctx.Context) { ranSecond = true })

		a.Post(frame.ToWireMessage(wellFormedFrame("")), "", nil)
		Expect(ranSecond).To(BeTrue())
	})

	It("namespaces a route path with its secretKey, leaving an unkeyed Channel's path bare", func() {
		keyed := channel.New(a, "tenant-1")
		unkeyed := channel.New(b, "")
		Expect(keyed.PrefixPath("/u")).To(Equal("tenant-1:/u"))
		Expect(unkeyed.PrefixPath("/u")).To(Equal("/u"))
	})
})
