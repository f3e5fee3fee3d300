package facade_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/facade"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/wire"
)

var _ = Describe("Facade", func() {
	var a, b *wire.LocalBus
	var fA, fB *facade.Facade

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
		fA.Open()
		fB.Open()
	})

	It("routes stream_data for a registered streamId to the Stream dispatcher", func() {
		var got *frame.Frame
		fA.Stream.Register("s1", func(f *frame.Frame) { got = f })

		dataFrame := &frame.Frame{
			ProtocolVersion: frame.CurrentVersion,
			Type:            frame.StreamData,
			RequestID:       "r1",
			TargetID:        fA.Hub.SelfID,
			Body:            frame.StreamDataBody{StreamID: "s1", Data: "chunk"},
		}
		a.Post(frame.ToWireMessage(dataFrame), "https://b.example", b)

		Eventually(func() *frame.Frame { return got }).ShouldNot(BeNil())
		body, ok := got.StreamData()
		Expect(ok).To(BeTrue())
		Expect(body.Data).To(Equal("chunk"))
	})

	It("ignores stream frames for an unregistered streamId", func() {
		dataFrame := &frame.Frame{
			ProtocolVersion: frame.CurrentVersion,
			Type:            frame.StreamData,
			RequestID:       "r2",
			TargetID:        fA.Hub.SelfID,
			Body:            frame.StreamDataBody{StreamID: "unknown"},
		}
		Expect(func() {
			a.Post(frame.ToWireMessage(dataFrame), "https://b.example", b)
		}).NotTo(Panic())
	})

	It("PingPeer resolves true once the peer's pong arrives", func() {
		Expect(fA.PingPeer()).To(BeTrue())
	})

	It("IsConnect resolves true once the peer's auto-ack arrives", func() {
		Expect(fA.IsConnect()).To(BeTrue())
	})

	It("IsConnect resolves false once the peer stops responding", func() {
		fB.Close()
		Expect(fA.IsConnect()).To(BeFalse())
	})
})
