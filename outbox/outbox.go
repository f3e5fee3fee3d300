// Package outbox implements a peer-bound sender created by
// hub.CreateOutbox, stamping a fixed target window/origin/targetId on every send.
package outbox

import (
	"context"
	"fmt"

	"github.com/winbridge/winbridge/dispatcher"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/idgen"
	"github.com/winbridge/winbridge/stream"
	"github.com/winbridge/winbridge/wire"
)

// Outbox is a sender bound to one peer (targetWindow, targetOrigin, defaultTargetId?).
type Outbox struct {
	d *dispatcher.Dispatcher
	targetWindow wire.Endpoint
	targetOrigin string
	defaultTargetID string
}

// New constructs an Outbox addressing one fixed peer.
func New(d *dispatcher.Dispatcher, targetWindow wire.Endpoint, targetOrigin, defaultTargetID string) *Outbox {
	return &Outbox{d: d, targetWindow: targetWindow, targetOrigin: targetOrigin, defaultTargetID: defaultTargetID}
}

func (o *Outbox) TargetWindow() wire.Endpoint { return o.targetWindow }
func (o *Outbox) TargetOrigin() string { return o.targetOrigin }

// SendOptions is the lifecycle-hook bundle for Send.
type SendOptions struct {
	OnOther func(data any) error
	OnStream func(s *stream.Writable) error
	OnFileOrBlob func(f *stream.FilePayload) error
	Before func()
	End func()
	Error func(err error) error // swallows err if it returns nil
	Finally func()
}

// Send dispatches by the runtime type of data: a *stream.Writable -> OnStream; a
// *stream.FilePayload -> OnFileOrBlob; else -> OnOther.
func (o *Outbox) Send(data any, opts SendOptions) (err error) {
	if opts.Before != nil {
		opts.Before()
	}
	defer func() {
		if opts.Finally != nil {
			opts.Finally()
		}
	}()

	switch v := data.(type) {
	case *stream.Writable:
		if opts.OnStream != nil {
			err = opts.OnStream(v)
		}
	case *stream.FilePayload:
		if opts.OnFileOrBlob != nil {
			err = opts.OnFileOrBlob(v)
		}
	default:
		if opts.OnOther != nil {
			err = opts.OnOther(data)
		}
	}

	if err != nil {
		if opts.Error != nil {
			err = opts.Error(err)
		}
		return err
	}
	if opts.End != nil {
		opts.End()
	}
	return nil
}

// stampTarget fills TargetID from the Outbox's default when the frame omits one.
func (o *Outbox) stampTarget(f *frame.Frame) {
	if f.TargetID == "" {
		f.TargetID = o.defaultTargetID
	}
}

// SendMessage stamps TargetID and sends a fully-built frame of the given type.
func (o *Outbox) SendMessage(typ frame.Type, requestID string, f *frame.Frame) bool {
	if f == nil {
		f = &frame.Frame{}
	}
	o.stampTarget(f)
	return o.d.SendMessage(o.targetWindow, o.targetOrigin, typ, requestID, f)
}

// SendFile adapts a File/Blob/string payload into an IframeFileWritableStream with
// base64 framing, inferring fileName/mimeType from a File, then
// delegates to SendStream.
func (o *Outbox) SendFile(ctx context.Context, requestID string, payload *stream.FilePayload, opts stream.WritableOptions) error {
	w := stream.NewFileWritable(payload, opts)
	return o.SendStream(ctx, requestID, w, stream.SendOptions{})
}

// SendStream binds w to this Outbox's peer and starts it, either blocking until the
// stream finishes (AwaitStart) or firing it off in its own goroutine.
func (o *Outbox) SendStream(ctx context.Context, requestID string, w *stream.Writable, opts stream.SendOptions) error {
	streamID := opts.StreamID
	if streamID == "" {
		streamID = idgen.New()
	}
	w.Bind(stream.BindArgs{
		RequestID: requestID,
		StreamID: streamID,
		TargetWindow: o.targetWindow,
		TargetOrigin: o.targetOrigin,
		TargetID: o.defaultTargetID,
		Send: func(f *frame.Frame) bool {
			o.stampTarget(f)
			return o.d.SendMessage(o.targetWindow, o.targetOrigin, f.Type, requestID, f)
		},
		RegisterPull: opts.RegisterPull,
	})

	if opts.BeforeStart != nil {
		opts.BeforeStart()
	}
	if opts.AwaitStart {
		return w.Start(ctx)
	}
	go func() {
		if err := w.Start(ctx); err != nil {
			_ = err // fire-and-forget: errors are observable via w.Err()
		}
	}()
	return nil
}

func (o *Outbox) String() string {
	return fmt.Sprintf("outbox(target=%s origin=%s)", o.defaultTargetID, o.targetOrigin)
}
