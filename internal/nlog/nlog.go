// Package nlog is winbridge's logger: a leveled call shape
// (Infof/Warningf/Errorf) with no on-disk rotation -- a message-fabric library has no
// business picking a log directory for its host process, so this version writes to an
// injectable io.Writer (stderr by default) and leaves rotation/shipping to whatever the
// embedding application already uses.
package nlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) String() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	title  string
	nlines atomic.Int64
)

// SetOutput redirects all future log lines; tests use this to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetTitle prefixes every line with a component tag, e.g. "hub[s1]".
func SetTitle(s string) { title = s }

func log(sev severity, format string, args ...any) {
	nlines.Add(1)
	msg := format
	if len(args) > 0 {
		if format == "" {
			msg = fmt.Sprintln(args...)
		} else {
			msg = fmt.Sprintf(format, args...)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	ts := time.Now().Format("15:04:05.000000")
	if title != "" {
		fmt.Fprintf(out, "%s %s %s] %s\n", sev, ts, title, msg)
		return
	}
	fmt.Fprintf(out, "%s %s] %s\n", sev, ts, msg)
}

func Infof(format string, args ...any)     { log(sevInfo, format, args...) }
func Warningf(format string, args ...any)  { log(sevWarn, format, args...) }
func Errorf(format string, args ...any)    { log(sevErr, format, args...) }
func Infoln(args ...any)                   { log(sevInfo, "", args...) }
func Warningln(args ...any)                { log(sevWarn, "", args...) }
func Errorln(args ...any)                  { log(sevErr, "", args...) }

// Lines returns the number of lines logged so far, for tests asserting "something was
// logged" without scraping output text.
func Lines() int64 { return nlines.Load() }
