// Package heartbeat implements the isConnect/liveness check both client and server use
// to decide whether a peer window is still responsive.
package heartbeat

import (
	"context"
	"time"

	"github.com/winbridge/winbridge/frame"
	"github.com/winbridge/winbridge/hub"
	"github.com/winbridge/winbridge/inbox"
	"github.com/winbridge/winbridge/internal/idgen"
	"github.com/winbridge/winbridge/wire"
)

const pongBucket = "heartbeat_pong"

// Pinger sends ping frames to one fixed peer and resolves on either an ack or a pong,
// depending on which variant is used.
type Pinger struct {
	h            *hub.Hub
	ib           *inbox.Inbox
	target       wire.Endpoint
	targetOrigin string
	targetID     string
}

func New(h *hub.Hub, ib *inbox.Inbox, target wire.Endpoint, targetOrigin, targetID string) *Pinger {
	return &Pinger{h: h, ib: ib, target: target, targetOrigin: targetOrigin, targetID: targetID}
}

// PingPeer is the server->peer liveness probe: only a pong resolves it, since "is the
// peer there and listening" is the question, not merely "did the bridge deliver this
// frame" -- an ack alone is not sufficient.
func (p *Pinger) PingPeer(timeout time.Duration) bool {
	requestID := idgen.New()
	done := make(chan struct{}, 1)
	p.h.Pending.Map(pongBucket).Set(requestID, func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	cancel := p.h.Pending.SetTimeout(timeout, func() {
		p.h.Pending.Map(pongBucket).Delete(requestID)
	})
	defer cancel()

	ok := p.h.Dispatcher.Send(p.target, &frame.Frame{TargetID: p.targetID}, p.targetOrigin, frame.Ping, requestID, false)
	if !ok {
		p.h.Pending.Map(pongBucket).Delete(requestID)
		return false
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.h.Pending.Map(pongBucket).Delete(requestID)
		return false
	}
}

// PingIsConnect is the client->peer liveness probe: an ack alone resolves it, since a
// client pinging its parent just wants to know the bridge is alive, not that
// application code on the other end processed anything.
func (p *Pinger) PingIsConnect(timeout time.Duration) bool {
	requestID := idgen.New()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	acked := make(chan struct{}, 1)
	resultCh := p.ib.Register(ctx, requestID, timeout, inbox.Callbacks{
		OnAck: func(*frame.Ack) { select { case acked <- struct{}{}: default: } },
	})

	ok := p.h.Dispatcher.Send(p.target, &frame.Frame{TargetID: p.targetID}, p.targetOrigin, frame.Ping, requestID, true)
	if !ok {
		return false
	}
	select {
	case <-acked:
		return true
	case <-resultCh:
		return false
	case <-ctx.Done():
		return false
	}
}
