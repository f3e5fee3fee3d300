// Package interceptor implements an ordered chain of request/response transforms, the
// way an HTTP client's interceptor stack runs before a request is sent and after its
// response arrives, including a rejected-handler branch for error short-circuiting.
package interceptor

import (
	"context"
	"sync"
)

// RequestFunc transforms or inspects a request value before it is sent. Returning a
// non-nil error short-circuits the remaining chain and the send itself.
type RequestFunc func(ctx context.Context, req any) (any, error)

// ResponseFunc transforms or inspects a response value, or handles a prior error (err
// != nil) and optionally recovers from it by returning a nil error.
type ResponseFunc func(ctx context.Context, resp any, err error) (any, error)

type requestEntry struct {
	seq int
	fn  RequestFunc
}

type responseEntry struct {
	seq int
	fn  ResponseFunc
}

// Chain holds ordered request and response interceptors, run in registration order for
// requests and the same order for responses (not reversed), matching a simple
// middleware pipeline rather than an onion model.
type Chain struct {
	mu       sync.Mutex
	nextSeq  int
	requests []requestEntry
	responses []responseEntry
}

func New() *Chain {
	return &Chain{}
}

// UseRequest appends a request interceptor, returning an unregister func.
func (c *Chain) UseRequest(fn RequestFunc) (remove func()) {
	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	c.requests = append(c.requests, requestEntry{seq: seq, fn: fn})
	c.mu.Unlock()
	return func() { c.removeRequest(seq) }
}

// UseResponse appends a response interceptor, returning an unregister func.
func (c *Chain) UseResponse(fn ResponseFunc) (remove func()) {
	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	c.responses = append(c.responses, responseEntry{seq: seq, fn: fn})
	c.mu.Unlock()
	return func() { c.removeResponse(seq) }
}

func (c *Chain) removeRequest(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.requests {
		if e.seq == seq {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			return
		}
	}
}

func (c *Chain) removeResponse(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.responses {
		if e.seq == seq {
			c.responses = append(c.responses[:i], c.responses[i+1:]...)
			return
		}
	}
}

// RunRequest threads req through every registered request interceptor in order,
// stopping at the first error.
func (c *Chain) RunRequest(ctx context.Context, req any) (any, error) {
	c.mu.Lock()
	fns := make([]RequestFunc, len(c.requests))
	for i, e := range c.requests {
		fns[i] = e.fn
	}
	c.mu.Unlock()

	var err error
	for _, fn := range fns {
		req, err = fn(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// RunResponse threads (resp, err) through every registered response interceptor in
// order. Any interceptor may recover from a non-nil err by returning a nil one.
func (c *Chain) RunResponse(ctx context.Context, resp any, err error) (any, error) {
	c.mu.Lock()
	fns := make([]ResponseFunc, len(c.responses))
	for i, e := range c.responses {
		fns[i] = e.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		resp, err = fn(ctx, resp, err)
	}
	return resp, err
}
