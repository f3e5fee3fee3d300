// Package hub implements the Hub (Dispatcher owner plus policies) and its
// Pending manager (named maps + tracked timeouts with guaranteed cleanup on teardown).
package hub

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/winbridge/winbridge/internal/metrics"
)

// Bucket is one named pending map inside a Pending manager -- e.g. inbox's
// "requests" or a server's "pendingRequestBodyStreams". Values are stored as `any`;
// callers type-assert to their own waiter struct, since Go generics over a
// dynamically-named map collection would need one type parameter per bucket.
type Bucket struct {
	name string
	mu sync.Mutex
	m map[string]any
}

func newBucket(name string) *Bucket { return &Bucket{name: name, m: make(map[string]any)} }

func (b *Bucket) Set(key string, val any) {
	b.mu.Lock()
	b.m[key] = val
	n := len(b.m)
	b.mu.Unlock()
	metrics.SetPendingBucketDepth(b.name, n)
}

func (b *Bucket) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	return v, ok
}

func (b *Bucket) Delete(key string) {
	b.mu.Lock()
	delete(b.m, key)
	n := len(b.m)
	b.mu.Unlock()
	metrics.SetPendingBucketDepth(b.name, n)
}

func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m)
}

func (b *Bucket) Clear() {
	b.mu.Lock()
	b.m = make(map[string]any)
	b.mu.Unlock()
}

// Keys returns a snapshot of the bucket's current keys.
func (b *Bucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.m))
	for k := range b.m {
		out = append(out, k)
	}
	return out
}

// Pending owns every named Bucket for one Hub, every timeout id spawned on its behalf,
// and a set of per-(bucket,key) admission limiters. Destroy guarantees no dangling
// timer survives it.
type Pending struct {
	mu sync.Mutex
	buckets map[string]*Bucket
	timers map[int]*time.Timer
	nextID int
	closed bool

	limMu sync.Mutex
	limiters map[string]*semaphore.Weighted
}

func NewPending() *Pending {
	return &Pending{
		buckets: make(map[string]*Bucket),
		timers: make(map[int]*time.Timer),
		limiters: make(map[string]*semaphore.Weighted),
	}
}

// Map returns (creating if necessary) the named Bucket.
func (p *Pending) Map(name string) *Bucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[name]
	if !ok {
		b = newBucket(name)
		p.buckets[name] = b
	}
	return b
}

// SetTimeout tracks a time.AfterFunc so that ClearAll (called by Hub.Destroy) can
// guarantee no fn fires after teardown, and so a caller can cancel its own timeout
// directly via the returned cancel func.
func (p *Pending) SetTimeout(d time.Duration, fn func()) (cancel func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}
	}
	id := p.nextID
	p.nextID++
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		p.mu.Lock()
		delete(p.timers, id)
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			fn()
		}
	})
	p.timers[id] = t
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		if t, ok := p.timers[id]; ok {
			t.Stop()
			delete(p.timers, id)
		}
		p.mu.Unlock()
	}
}

// ClearAll cancels every tracked timeout and empties every bucket. Hub.Close leaves
// buckets alone (so legitimate late frames can still resolve real waiters); only
// Hub.Destroy calls this.
func (p *Pending) ClearAll() {
	p.mu.Lock()
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	for _, b := range p.buckets {
		b.Clear()
	}
	p.mu.Unlock()
}

// TryAcquire implements a generic limiter counter: at most `limit`
// concurrent admissions for a given (bucket, key), backed by golang.org/x/sync/
// semaphore so saturation is a non-blocking TryAcquire rather than a hand-rolled
// counter with its own mutex. Returns false when already at the limit.
func (p *Pending) TryAcquire(bucket, key string, limit int64) bool {
	sem := p.limiterFor(bucket, key, limit)
	return sem.TryAcquire(1)
}

// Release gives back one admission acquired via TryAcquire for (bucket, key).
func (p *Pending) Release(bucket, key string) {
	p.limMu.Lock()
	sem, ok := p.limiters[bucket+"\x00"+key]
	p.limMu.Unlock()
	if ok {
		sem.Release(1)
	}
}

func (p *Pending) limiterFor(bucket, key string, limit int64) *semaphore.Weighted {
	k := bucket + "\x00" + key
	p.limMu.Lock()
	defer p.limMu.Unlock()
	sem, ok := p.limiters[k]
	if !ok {
		sem = semaphore.NewWeighted(limit)
		p.limiters[k] = sem
	}
	return sem
}
