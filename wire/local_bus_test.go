package wire_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/wire"
)

var _ = Describe("LocalBus", func() {
	It("delivers a Post to every current subscriber, in registration order", func() {
		a, _ := wire.NewPair("https://a.example", "https://b.example")
		var order []int

		a.Subscribe(func(msg wire.Message, origin string, source wire.Endpoint) { order = append(order, 1) })
		a.Subscribe(func(msg wire.Message, origin string, source wire.Endpoint) { order = append(order, 2) })

		ok := a.Post("hello", "https://b.example", nil)
		Expect(ok).To(BeTrue())
		Expect(order).To(Equal([]int{1, 2}))
	})

	It("stops delivering to a listener after its unsubscribe func runs", func() {
		a, _ := wire.NewPair("https://a.example", "https://b.example")
		var count int
		unsub := a.Subscribe(func(msg wire.Message, origin string, source wire.Endpoint) { count++ })

		a.Post("one", "", nil)
		unsub()
		a.Post("two", "", nil)

		Expect(count).To(Equal(1))
	})

	It("reports Post failure without panicking once closed", func() {
		a, _ := wire.NewPair("https://a.example", "https://b.example")
		Expect(a.Available()).To(BeTrue())

		a.Close()

		Expect(a.Available()).To(BeFalse())
		Expect(a.Post("x", "", nil)).To(BeFalse())
	})

	It("carries the origin each side was constructed with", func() {
		a, b := wire.NewPair("https://a.example", "https://b.example")
		Expect(a.Origin()).To(Equal("https://a.example"))
		Expect(b.Origin()).To(Equal("https://b.example"))
	})
})
