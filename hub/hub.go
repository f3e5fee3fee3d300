package hub

import (
	"sync"
	"time"

	"github.com/winbridge/winbridge/channel"
	"github.com/winbridge/winbridge/dispatcher"
	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/internal/config"
	"github.com/winbridge/winbridge/internal/hk"
	"github.com/winbridge/winbridge/internal/idgen"
	"github.com/winbridge/winbridge/internal/nlog"
	"github.com/winbridge/winbridge/internal/onceset"
	"github.com/winbridge/winbridge/msgctx"
	"github.com/winbridge/winbridge/wire"
)

const warnOnceResetInterval = time.Hour

// Hub owns one Dispatcher, a Pending manager, a warn-once registry, and the
// origin/fallback policy for one endpoint. It exposes open/close/destroy
// lifecycle with before/after hooks.
type Hub struct {
	Role frame.Role
	SelfID string
	Cfg *config.Config

	cache *channel.Cache
	self wire.Endpoint
	secretKey string

	Dispatcher *Dispatcher
	Pending *Pending
	warnOnce *onceset.Set
	hkName string

	mu sync.Mutex
	open bool
	unregisters []func()
	beforeOpen []func()
	afterOpen []func()
	beforeClose []func()
	afterClose []func()
}

// Dispatcher is re-exported under hub so callers of hub.New don't need to also import
// the dispatcher package for the common case; it is a type alias, not a wrapper.
type Dispatcher = dispatcher.Dispatcher

// New constructs a Hub bound to self/secretKey, sharing a Channel with any other Hub in
// the process that was constructed against the same (self, secretKey) via cache.
func New(cache *channel.Cache, self wire.Endpoint, role frame.Role, cfg *config.Config) *Hub {
	if cfg == nil {
		cfg = config.Default()
	}
	secretKey := cfg.SecretKey
	ch := cache.AddRef(self, secretKey)
	selfID := idgen.New()
	d := dispatcher.New(ch, role, selfID, cfg)

	return &Hub{
		Role: role,
		SelfID: selfID,
		Cfg: cfg,
		cache: cache,
		self: self,
		secretKey: secretKey,
		Dispatcher: d,
		Pending: NewPending(),
		warnOnce: onceset.New(),
		hkName: "hub-warnonce-" + selfID + hk.NameSuffix,
	}
}

// OnBeforeOpen/OnAfterOpen/OnBeforeClose/OnAfterClose register before/after hooks run
// during Open/Close, the composition points Facade, Inbox and Server use to install
// their handler sets without Hub depending on them.
func (h *Hub) OnBeforeOpen(fn func()) { h.beforeOpen = append(h.beforeOpen, fn) }
func (h *Hub) OnAfterOpen(fn func()) { h.afterOpen = append(h.afterOpen, fn) }
func (h *Hub) OnBeforeClose(fn func()) { h.beforeClose = append(h.beforeClose, fn) }
func (h *Hub) OnAfterClose(fn func()) { h.afterClose = append(h.afterClose, fn) }

// Open is idempotent. It runs beforeOpen hooks, marks the Hub open, then afterOpen
// hooks -- Facade's registerStreamDispatch, Inbox's and Server's handler registrations
// run as afterOpen hooks so they only register once per Open.
func (h *Hub) Open() {
	h.mu.Lock()
	if h.open {
		h.mu.Unlock()
		return
	}
	h.open = true
	h.mu.Unlock()

	hk.DefaultHK.Reg(h.hkName, func() time.Duration {
		h.warnOnce.Reset()
		return warnOnceResetInterval
	}, warnOnceResetInterval)

	for _, fn := range h.beforeOpen {
		fn()
	}
	for _, fn := range h.afterOpen {
		fn()
	}
}

// RegisterHandler wraps Dispatcher.RegisterHandler, tracking the unregister func so
// Close can mass-remove everything this Hub installed.
func (h *Hub) RegisterHandler(matcher dispatcher.Matcher, fn dispatcher.Handler, opts dispatcher.Options) (unregister func()) {
	unreg := h.Dispatcher.RegisterHandler(matcher, fn, opts)
	h.mu.Lock()
	h.unregisters = append(h.unregisters, unreg)
	h.mu.Unlock()
	return unreg
}

// CreateHandlerOptions bakes a configured protocol-version validator and onVersionError
// callback into an Options value, the shape every base handler registration uses.
func (h *Hub) CreateHandlerOptions(priority int, onVersionError func(*frame.Frame, *msgctx.Context, int)) dispatcher.Options {
	return dispatcher.Options{
		Priority: priority,
		VersionValidator: func(v int) bool {
			return v >= frame.MinSupportedVersion
		},
		OnVersionError: onVersionError,
	}
}

// Close is idempotent. It runs beforeClose hooks, removes every handler this Hub
// registered, then afterClose hooks. Pending buckets/timers are left alone -- only
// Destroy clears those -- so a legitimate late frame can still resolve a real waiter.
func (h *Hub) Close() {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return
	}
	h.open = false
	unregs := h.unregisters
	h.unregisters = nil
	h.mu.Unlock()

	hk.DefaultHK.Unreg(h.hkName)

	for _, fn := range h.beforeClose {
		fn()
	}
	for _, unreg := range unregs {
		unreg()
	}
	for _, fn := range h.afterClose {
		fn()
	}
}

// IsOpen reports whether Open has been called without a matching Close.
func (h *Hub) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Destroy closes the Hub, clears every pending waiter and timer, and
// releases this Hub's reference on the shared Channel. It is idempotent.
func (h *Hub) Destroy() {
	h.Close()
	h.Pending.ClearAll()
	h.mu.Lock()
	cache := h.cache
	h.cache = nil
	h.mu.Unlock()
	if cache != nil {
		cache.Release(h.self, h.secretKey)
	}
}

// WarnOnce runs fn only the first time it is called with a given key, used as the
// diagnostic for a late frame arriving after Close.
func (h *Hub) WarnOnce(key string, fn func()) {
	if h.warnOnce.CheckAndMark(key) {
		fn()
	}
}

// WarnOncef is the common case: log a formatted warning at most once per key.
func (h *Hub) WarnOncef(key, format string, args...any) {
	h.WarnOnce(key, func() { nlog.Warningf(format, args...) })
}

// SetFallbackTarget supplies the Dispatcher's auto-ACK reply destination to use when a
// delivery's MessageContext carries no Source.
func (h *Hub) SetFallbackTarget(target wire.Endpoint, origin string) {
	h.Dispatcher.SetFallbackTarget(target, origin)
}

// IsOriginAllowedBy exposes the package-level origin policy bound to this Hub's own
// nothing-special defaults; see origin.go for the resolution order.
func (h *Hub) IsOriginAllowedBy(origin string, data any, ctx any, expectedOrigin string, validator OriginValidator) bool {
	return IsOriginAllowedBy(origin, data, ctx, expectedOrigin, validator)
}
