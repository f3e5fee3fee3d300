// Package onceset backs the Hub's warn-once registry: emitting a diagnostic at most
// once per key for a late frame arriving after Close. The registry only ever has to
// answer "have I already warned about this key", where an occasional false-positive
// "yes" (suppressing one duplicate warning) is harmless and a false "no" never happens
// -- a genuine fit for a cuckoo filter sized for the expected key cardinality.
package onceset

import (
	cuckoo "github.com/seiflotfy/cuckoofilter"
	"sync"
)

// defaultCapacity bounds memory: a Hub does not warn about more than a few thousand
// distinct keys (one per requestId that ever arrived after close) over its lifetime.
const defaultCapacity = 4096

// Set answers "have I seen this key" with false-positive-tolerant semantics.
type Set struct {
	mu sync.Mutex
	filter *cuckoo.Filter
}

// New returns an empty Set.
func New() *Set {
	return &Set{filter: cuckoo.NewFilter(defaultCapacity)}
}

// CheckAndMark returns true the first time it is called for key (and every subsequent
// call for that key, modulo the filter's false-positive rate, returns false). Use:
//
//	if once.CheckAndMark(key) {
//	 nlog.Warningf(...)
//	}
func (s *Set) CheckAndMark(key string) (firstTime bool) {
	b := []byte(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter.Lookup(b) {
		return false
	}
	s.filter.InsertUnique(b)
	return true
}

// Reset clears the registry, used by the Hub's periodic housekeeping job.
func (s *Set) Reset() {
	s.mu.Lock()
	s.filter.Reset()
	s.mu.Unlock()
}
