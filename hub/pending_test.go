package hub_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/hub"
)

var _ = Describe("Pending", func() {
	It("creates a named Bucket on first Map call and reuses it after", func() {
		p := hub.NewPending()
		b1 := p.Map("requests")
		b1.Set("r1", "waiter-1")

		b2 := p.Map("requests")
		v, ok := b2.Get("r1")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("waiter-1"))
	})

	It("tracks Len and Keys against Set/Delete", func() {
		p := hub.NewPending()
		b := p.Map("streams")
		b.Set("s1", 1)
		b.Set("s2", 2)
		Expect(b.Len()).To(Equal(2))
		Expect(b.Keys()).To(ConsistOf("s1", "s2"))

		b.Delete("s1")
		Expect(b.Len()).To(Equal(1))
		Expect(b.Keys()).To(ConsistOf("s2"))
	})

	It("fires a SetTimeout callback after the delay unless cancelled", func() {
		p := hub.NewPending()
		fired := make(chan struct{}, 1)
		p.SetTimeout(10*time.Millisecond, func() { fired <- struct{}{} })

		Eventually(fired).Should(Receive())
	})

	It("cancel stops a SetTimeout callback from firing", func() {
		p := hub.NewPending()
		fired := make(chan struct{}, 1)
		cancel := p.SetTimeout(10*time.Millisecond, func() { fired <- struct{}{} })
		cancel()

		Consistently(fired, 30*time.Millisecond).ShouldNot(Receive())
	})

	It("ClearAll empties every bucket and stops pending timers", func() {
		p := hub.NewPending()
		b := p.Map("requests")
		b.Set("r1", "waiter-1")

		fired := make(chan struct{}, 1)
		p.SetTimeout(10*time.Millisecond, func() { fired <- struct{}{} })
		p.ClearAll()

		Expect(b.Len()).To(Equal(0))
		Consistently(fired, 30*time.Millisecond).ShouldNot(Receive())
	})

	It("TryAcquire admits up to limit concurrent holders for a (bucket, key) pair", func() {
		p := hub.NewPending()
		Expect(p.TryAcquire("bucket", "key", 2)).To(BeTrue())
		Expect(p.TryAcquire("bucket", "key", 2)).To(BeTrue())
		Expect(p.TryAcquire("bucket", "key", 2)).To(BeFalse())

		p.Release("bucket", "key")
		Expect(p.TryAcquire("bucket", "key", 2)).To(BeTrue())
	})
})
