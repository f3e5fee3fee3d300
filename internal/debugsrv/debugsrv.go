// Package debugsrv exposes a minimal fasthttp status endpoint reporting a snapshot of
// one Hub's open state, pending bucket sizes, and log line count, for local debugging.
package debugsrv

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"github.com/winbridge/winbridge/hub"
	"github.com/winbridge/winbridge/internal/nlog"
)

// Snapshot is the JSON body served at the status path.
type Snapshot struct {
	Role        string         `json:"role"`
	SelfID      string         `json:"selfId"`
	Open        bool           `json:"open"`
	PendingSize map[string]int `json:"pendingSize"`
	LogLines    int64          `json:"logLines"`
}

// Server serves a single status path over fasthttp for one Hub.
type Server struct {
	h       *hub.Hub
	buckets []string
	srv     *fasthttp.Server
}

// New constructs a debug server for h, reporting sizes for the named buckets.
func New(h *hub.Hub, buckets ...string) *Server {
	s := &Server{h: h, buckets: buckets}
	s.srv = &fasthttp.Server{Handler: s.handle}
	return s
}

// ListenAndServe blocks serving on addr (e.g. "127.0.0.1:0").
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != "/debug/winbridge/status" {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	snap := Snapshot{
		Role:        string(s.h.Role),
		SelfID:      s.h.SelfID,
		Open:        s.h.IsOpen(),
		PendingSize: make(map[string]int, len(s.buckets)),
		LogLines:    nlog.Lines(),
	}
	for _, b := range s.buckets {
		snap.PendingSize[b] = s.h.Pending.Map(b).Len()
	}

	body, err := json.Marshal(snap)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
