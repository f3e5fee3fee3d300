package nlog_test

import (
	"bytes"
	"os"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/winbridge/winbridge/internal/nlog"
)

var _ = Describe("nlog", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		nlog.SetOutput(buf)
		nlog.SetTitle("")
	})

	AfterEach(func() {
		nlog.SetOutput(os.Stderr)
	})

	It("Infof writes a line tagged with the I severity", func() {
		nlog.Infof("hello %s", "world")
		Expect(buf.String()).To(ContainSubstring("I "))
		Expect(buf.String()).To(ContainSubstring("hello world"))
	})

	It("Warningf writes a line tagged with the W severity", func() {
		nlog.Warningf("careful")
		Expect(buf.String()).To(ContainSubstring("W "))
		Expect(buf.String()).To(ContainSubstring("careful"))
	})

	It("Errorf writes a line tagged with the E severity", func() {
		nlog.Errorf("broken")
		Expect(buf.String()).To(ContainSubstring("E "))
		Expect(buf.String()).To(ContainSubstring("broken"))
	})

	It("SetTitle prefixes every subsequent line with the component tag", func() {
		nlog.SetTitle("hub[s1]")
		nlog.Infof("opened")
		Expect(buf.String()).To(ContainSubstring("hub[s1]]"))
	})

	It("Infoln joins its arguments the way fmt.Sprintln does", func() {
		nlog.Infoln("a", "b")
		Expect(strings.Contains(buf.String(), "a b")).To(BeTrue())
	})

	It("Lines increments on every call", func() {
		before := nlog.Lines()
		nlog.Infof("one")
		nlog.Warningf("two")
		Expect(nlog.Lines()).To(Equal(before + 2))
	})
})
