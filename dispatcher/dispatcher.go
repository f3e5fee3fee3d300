// Package dispatcher implements the policy layer between Channel and the
// registered per-type handlers of one endpoint (client or server). Exactly one
// Dispatcher is constructed per Hub and attached as a single Channel receiver.
package dispatcher

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/internal/metrics"
	"github.com/winbridge/winbridge/internal/nlog"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/wire"
)

// Matcher decides whether a handler applies to a given frame Type.
type Matcher interface {
	Match(t frame.Type) bool
}

// ExactType matches one literal Type.
type ExactType frame.Type

func (m ExactType) Match(t frame.Type) bool { return frame.Type(m) == t }

// RegexType matches Type against a compiled pattern.
type RegexType struct{ Pattern *regexp.Regexp }

func (m RegexType) Match(t frame.Type) bool { return m.Pattern.MatchString(string(t)) }

// PredicateType matches Type via an arbitrary function.
type PredicateType func(t frame.Type) bool

func (m PredicateType) Match(t frame.Type) bool { return m(t) }

// Handler processes one accepted delivery.
type Handler func(f *frame.Frame, ctx *msgctx.Context)

// Options configure one registered handler.
type Options struct {
	Priority int
	VersionValidator func(version int) bool
	OnVersionError func(f *frame.Frame, ctx *msgctx.Context, version int)
}

type registration struct {
	seq int
	matcher Matcher
	fn Handler
	opts Options
}

// Dispatcher fans a delivery across ordered, priority-sorted handlers for one endpoint.
type Dispatcher struct {
	ch *channel.Channel
	role frame.Role
	selfID string
	cfg *config.Config

	// fallback is used for auto-ACK replies when a delivery's MessageContext has no
	// recorded Source (e.g. a synthetic/test delivery).
	fallbackTarget wire.Endpoint
	fallbackOrigin string

	mu sync.Mutex
	nextSeq int
	regs []registration
}

// New constructs a Dispatcher bound to one endpoint's role and identity, and attaches
// it as ch's single receiver.
func New(ch *channel.Channel, role frame.Role, selfID string, cfg *config.Config) *Dispatcher {
	d := &Dispatcher{ch: ch, role: role, selfID: selfID, cfg: cfg}
	ch.AddReceiver(d.dispatch)
	return d
}

// SetFallbackTarget supplies a reply destination for auto-ACK when a delivery carries
// no usable msgctx.Context.Source.
func (d *Dispatcher) SetFallbackTarget(target wire.Endpoint, origin string) {
	d.mu.Lock()
	d.fallbackTarget, d.fallbackOrigin = target, origin
	d.mu.Unlock()
}

// RegisterHandler appends fn, re-sorting all handlers by descending Options.Priority
// (ties preserve insertion order -- a stable sort on an ascending-sequence tiebreaker).
// It returns an unregister function.
func (d *Dispatcher) RegisterHandler(matcher Matcher, fn Handler, opts Options) (unregister func()) {
	d.mu.Lock()
	seq := d.nextSeq
	d.nextSeq++
	d.regs = append(d.regs, registration{seq: seq, matcher: matcher, fn: fn, opts: opts})
	d.resort()
	d.mu.Unlock()

	return func() { d.unregisterBySeq(seq) }
}

// UnregisterHandler removes a handler by function identity is not representable in Go
// (funcs aren't comparable); callers must use the unregister closure RegisterHandler
// returns instead, a registration token standing in for a comparable function value.
func (d *Dispatcher) unregisterBySeq(seq int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.regs {
		if r.seq == seq {
			d.regs = append(d.regs[:i], d.regs[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) resort() {
	sort.SliceStable(d.regs, func(i, j int) bool {
		return d.regs[i].opts.Priority > d.regs[j].opts.Priority
	})
}

// dispatch is the Channel receiver: dispatch algorithm steps 1-5.
func (d *Dispatcher) dispatch(f *frame.Frame, ctx *msgctx.Context) {
	if ctx.HandledBy() != "" { // step 1: cooperative lock already claimed upstream
		return
	}
	if f.Role != "" && f.Role == d.role { // step 2: reject same-role frames
		return
	}
	if f.TargetID != "" && f.TargetID != d.selfID { // F2
		return
	}

	metrics.IncFramesDispatched(string(f.Type), string(d.role))

	d.mu.Lock()
	regs := append([]registration(nil), d.regs...)
	d.mu.Unlock()

	acked := false
	for _, r := range regs {
		if !r.matcher.Match(f.Type) {
			continue
		}
		if r.opts.VersionValidator != nil && f.ProtocolVersion != 0 {
			if !r.opts.VersionValidator(f.ProtocolVersion) { // step 3a
				if r.opts.OnVersionError != nil {
					d.runOnVersionError(r.opts.OnVersionError, f, ctx)
				}
				continue
			}
		}
		if ctx.HandledBy() != "" {
			break // step 3b
		}
		d.runHandler(r.fn, f, ctx) // step 3c
		if !acked && ctx.AcceptedBy() != "" {
			d.tryAutoAck(f, ctx)
			acked = true
		}
	}

	if !acked {
		d.tryAutoAck(f, ctx) // step 4
	}

	if hb := ctx.HandledBy(); hb != "" {
		ctx.MarkDoneBy(hb) // step 5
	}
}

func (d *Dispatcher) runHandler(fn Handler, f *frame.Frame, ctx *msgctx.Context) {
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("dispatcher: handler panic on %s/%s: %v", f.Type, f.RequestID, r)
		}
	}()
	fn(f, ctx)
}

func (d *Dispatcher) runOnVersionError(fn func(*frame.Frame, *msgctx.Context, int), f *frame.Frame, ctx *msgctx.Context) {
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("dispatcher: onVersionError panic on %s/%s: %v", f.Type, f.RequestID, r)
		}
	}()
	fn(f, ctx, f.ProtocolVersion)
}

// tryAutoAck implements generalized auto-ACK: any frame with
// requireAck=true whose context was positively accepted gets one ACK reply, no matter
// which handler accepted it or whether it was request, response, stream frame, or
// heartbeat.
func (d *Dispatcher) tryAutoAck(f *frame.Frame, ctx *msgctx.Context) {
	if !f.RequireAck || f.Type == frame.Ack {
		return
	}
	if ctx.AcceptedBy() == "" {
		return
	}

	target := ctx.Source
	origin := ctx.Origin
	if target == nil {
		d.mu.Lock()
		target, origin = d.fallbackTarget, d.fallbackOrigin
		d.mu.Unlock()
	}
	if target == nil {
		return
	}

	ack := boundAck(f.Ack, d.cfg)
	reply := &frame.Frame{
		TargetID: f.CreatorID,
		Ack: ack,
	}
	if d.Send(target, reply, origin, frame.Ack, f.RequestID, false) {
		metrics.IncAutoAcksSent()
	}
}

// boundAck drops Meta, then the whole Ack field, once configured character-count
// limits are exceeded. Matching on the other side is by ID only.
func boundAck(in *frame.Ack, cfg *config.Config) *frame.Ack {
	if in == nil {
		return nil
	}
	if len(in.ID) > cfg.MaxAckIDLength {
		return nil
	}
	if len(in.Meta) > cfg.MaxAckMetaLength {
		return &frame.Ack{ID: in.ID}
	}
	return &frame.Ack{ID: in.ID, Meta: in.Meta}
}

// Send stamps role/creatorId (if absent) and sends via Channel. It returns false when
// the target is unavailable.
func (d *Dispatcher) Send(target wire.Endpoint, f *frame.Frame, targetOrigin string, typ frame.Type, requestID string, requireAck bool) bool {
	if f.Role == "" {
		f.Role = d.role
	}
	if f.CreatorID == "" {
		f.CreatorID = d.selfID
	}
	f.RequireAck = f.RequireAck || requireAck
	f.ProtocolVersion = frame.CurrentVersion
	f.Timestamp = time.Now().UnixNano()
	f.Type = typ
	f.RequestID = requestID
	return d.ch.Send(target, f, targetOrigin)
}

// SendMessage is Send without pre-built partial frame fields, for callers that just
// want role/creatorId/secretKey stamped on an otherwise-complete Frame.
func (d *Dispatcher) SendMessage(target wire.Endpoint, targetOrigin string, typ frame.Type, requestID string, partial *frame.Frame) bool {
	if partial == nil {
		partial = &frame.Frame{}
	}
	return d.Send(target, partial, targetOrigin, typ, requestID, partial.RequireAck)
}

// Role reports this dispatcher's configured role.
func (d *Dispatcher) Role() frame.Role { return d.role }

// SelfID reports this dispatcher's (endpoint instance) identity.
func (d *Dispatcher) SelfID() string { return d.selfID }
