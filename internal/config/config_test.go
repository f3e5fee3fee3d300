package config_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/internal/config"
)

var _ = Describe("Config", func() {
	It("Default populates every timeout and bound with a non-zero value", func() {
		c := config.Default()
		Expect(c.AckTimeout).To(Equal(3 * time.Second))
		Expect(c.RequestTimeout).To(Equal(30 * time.Second))
		Expect(c.AsyncTimeout).To(Equal(2 * time.Minute))
		Expect(c.HeartbeatTimeout).To(Equal(3 * time.Second))
		Expect(c.IncomingStreamStartTimeout).To(Equal(10 * time.Second))
		Expect(c.MaxAckIDLength).To(Equal(128))
		Expect(c.MaxAckMetaLength).To(Equal(256))
		Expect(c.StreamPullCredit).To(Equal(4))
		Expect(c.SecretKey).To(BeEmpty())
	})

	It("With applies options to a copy, leaving the receiver untouched", func() {
		base := config.Default()
		derived := base.With(config.WithSecretKey("tenant-a"), config.WithAckTimeout(time.Second))

		Expect(derived.SecretKey).To(Equal("tenant-a"))
		Expect(derived.AckTimeout).To(Equal(time.Second))
		Expect(base.SecretKey).To(BeEmpty())
		Expect(base.AckTimeout).To(Equal(3 * time.Second))
	})

	It("WithRequestTimeout and WithAsyncTimeout override only their own field", func() {
		derived := config.Default().With(config.WithRequestTimeout(5*time.Second), config.WithAsyncTimeout(10*time.Second))
		Expect(derived.RequestTimeout).To(Equal(5 * time.Second))
		Expect(derived.AsyncTimeout).To(Equal(10 * time.Second))
		Expect(derived.HeartbeatTimeout).To(Equal(3 * time.Second))
	})
})
