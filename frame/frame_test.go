package frame_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/frame"
)

var _ = Describe("Frame", func() {
	Describe("IsWellFormed", func() {
		It("requires protocolVersion, type and requestId", func() {
			f := &frame.Frame{ProtocolVersion: frame.CurrentVersion, Type: frame.Request, RequestID: "r1"}
			Expect(f.IsWellFormed()).To(BeTrue())
		})

		It("rejects a frame missing requestId", func() {
			f := &frame.Frame{ProtocolVersion: frame.CurrentVersion, Type: frame.Request}
			Expect(f.IsWellFormed()).To(BeFalse())
		})

		It("rejects a nil frame", func() {
			var f *frame.Frame
			Expect(f.IsWellFormed()).To(BeFalse())
		})
	})

	Describe("body accessors", func() {
		It("decodes a concrete in-process body without serializing", func() {
			f := &frame.Frame{Type: frame.StreamData, Body: frame.StreamDataBody{StreamID: "s1", Data: "chunk"}}
			body, ok := f.StreamData()
			Expect(ok).To(BeTrue())
			Expect(body.StreamID).To(Equal("s1"))
			Expect(body.Data).To(Equal("chunk"))
		})

		It("decodes a body that arrived as map[string]any (post round-trip shape)", func() {
			f := &frame.Frame{Type: frame.StreamEnd, Body: map[string]any{"streamId": "s2"}}
			body, ok := f.StreamEnd()
			Expect(ok).To(BeTrue())
			Expect(body.StreamID).To(Equal("s2"))
		})

		It("reports false for the wrong accessor", func() {
			f := &frame.Frame{Type: frame.StreamData, Body: frame.StreamDataBody{StreamID: "s1"}}
			_, ok := f.StreamCancelMsg()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("StreamIDOf", func() {
		It("prefers the top-level StreamID when a request carries a streamed body", func() {
			f := &frame.Frame{Type: frame.Request, StreamID: "top"}
			id, ok := frame.StreamIDOf(f)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("top"))
		})

		It("falls back to the typed body for a stream_data frame", func() {
			f := &frame.Frame{Type: frame.StreamData, Body: frame.StreamDataBody{StreamID: "body-id"}}
			id, ok := frame.StreamIDOf(f)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("body-id"))
		})

		It("falls back to the pull body for a stream_pull frame", func() {
			f := &frame.Frame{Type: frame.StreamPull, Body: frame.PullBody{StreamID: "pull-id", Credit: 4}}
			id, ok := frame.StreamIDOf(f)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("pull-id"))
		})

		It("reports false for a non-stream frame with no top-level id", func() {
			f := &frame.Frame{Type: frame.Ping}
			_, ok := frame.StreamIDOf(f)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Marshal/Unmarshal round trip", func() {
		It("preserves every field across a JSON round trip", func() {
			in := &frame.Frame{
				ProtocolVersion: frame.CurrentVersion,
				Type:            frame.Request,
				RequestID:       "r1",
				Role:            frame.RoleClient,
				CreatorID:       "client-1",
				Path:            "/u",
				RequireAck:      true,
			}
			b, err := frame.Marshal(in)
			Expect(err).NotTo(HaveOccurred())

			var out frame.Frame
			Expect(frame.Unmarshal(b, &out)).To(Succeed())
			Expect(out.RequestID).To(Equal("r1"))
			Expect(out.Path).To(Equal("/u"))
			Expect(out.RequireAck).To(BeTrue())
		})
	})
})
