// Package facade wires Hub, Inbox, Outbox, the stream dispatcher, and a heartbeat
// Pinger into the single composed object a Client or Server embeds. None of the pieces
// here depend on a browser DOM; callers bind a concrete wire.Endpoint.
package facade

import (
	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/heartbeat"
	"github.com/winbridge/winbridge/hub"
	"github.com/winbridge/winbridge/inbox"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/internal/metrics"
	"github.com/winbridge/winbridge/outbox"
	"github.com/winbridge/winbridge/stream"
	"github.com/winbridge/winbridge/wire"
)

// Facade is the composed runtime shared by Client and Server: one Hub, one Inbox (for
// correlating requests this side originates), one default Outbox addressing the peer,
// a stream.Dispatcher for incoming stream frames, and a Pinger for liveness checks.
type Facade struct {
	Hub    *hub.Hub
	Inbox  *inbox.Inbox
	Outbox *outbox.Outbox
	Pinger *heartbeat.Pinger
	Stream *stream.Dispatcher
}

// Options configures New.
type Options struct {
	Cache        *channel.Cache
	Self         wire.Endpoint
	Role         frame.Role
	Target       wire.Endpoint
	TargetOrigin string
	TargetID     string
	Cfg          *config.Config
}

// New constructs a Facade and registers its base stream/request-body handler set as an
// afterOpen hook, so nothing dispatches before Open is called.
func New(opts Options) *Facade {
	cfg := opts.Cfg
	if cfg == nil {
		cfg = config.Default()
	}
	h := hub.New(opts.Cache, opts.Self, opts.Role, cfg)
	h.SetFallbackTarget(opts.Target, opts.TargetOrigin)

	ib := inbox.New(h)
	ob := outbox.New(h.Dispatcher, opts.Target, opts.TargetOrigin, opts.TargetID)
	sd := stream.NewDispatcher()
	pinger := heartbeat.New(h, ib, opts.Target, opts.TargetOrigin, opts.TargetID)

	f := &Facade{Hub: h, Inbox: ib, Outbox: ob, Pinger: pinger, Stream: sd}
	h.OnAfterOpen(f.registerStreamDispatch)
	return f
}

// registerStreamDispatch installs the single handler that demultiplexes every
// stream_* frame (other than stream_start, which Inbox/Server forward directly) to
// this Facade's stream.Dispatcher.
func (f *Facade) registerStreamDispatch() {
	opts := f.Hub.CreateHandlerOptions(50, nil)
	matcher := streamTypeMatcher{}
	f.Hub.RegisterHandler(matcher, f.Stream.Dispatch, opts)
	metrics.IncFacadesOpened()
}

type streamTypeMatcher struct{}

func (streamTypeMatcher) Match(t frame.Type) bool {
	switch t {
	case frame.StreamData, frame.StreamEnd, frame.StreamError, frame.StreamCancel, frame.StreamPull:
		return true
	default:
		return false
	}
}

// Open/Close/Destroy/IsOpen delegate to Hub; kept here so Client/Server don't need to
// reach into f.Hub for the common lifecycle calls.
func (f *Facade) Open()     { f.Hub.Open() }
func (f *Facade) Close()    { f.Hub.Close() }
func (f *Facade) Destroy()  { f.Hub.Destroy() }
func (f *Facade) IsOpen() bool { return f.Hub.IsOpen() }

// IsConnect pings the peer and resolves on ack alone; see heartbeat.Pinger.PingIsConnect.
func (f *Facade) IsConnect() bool {
	return f.Pinger.PingIsConnect(f.Hub.Cfg.HeartbeatTimeout)
}

// PingPeer pings the peer and blocks for a pong; see heartbeat.Pinger.PingPeer.
func (f *Facade) PingPeer() bool {
	return f.Pinger.PingPeer(f.Hub.Cfg.HeartbeatTimeout)
}
