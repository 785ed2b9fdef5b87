// Package lowlevel provides a restricted bump allocator for symbolization
// text. Resolution runs inside the host's intercepted allocation routines, so
// descriptor text must never come from the ambient allocation path; regions
// here are carved out of anonymous mappings and handed out in place.
package lowlevel

import (
	"sync"
)

// regionSize is the granularity at which backing regions are acquired.
const regionSize = 64 << 10

// Allocator is a bump allocator over fixed-size regions. Individual strings
// are not returned to the region; Release only updates live accounting so
// ownership bugs (double release, leaks) are observable.
type Allocator struct {
	mu        sync.Mutex
	regions   [][]byte
	cur       []byte
	liveCount int
	liveBytes int
}

// New creates an empty allocator. Regions are acquired on first use.
func New() *Allocator {
	return &Allocator{}
}

// Strdup copies s into allocator-owned storage and returns a handle to it.
// The empty string has no storage to own and maps to the unset handle.
func (a *Allocator) Strdup(s string) Str {
	if s == "" {
		return Str{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.cur) < len(s) {
		size := regionSize
		if len(s) > size {
			size = len(s)
		}
		region := newRegion(size)
		a.regions = append(a.regions, region)
		a.cur = region
	}

	buf := a.cur[:len(s):len(s)]
	a.cur = a.cur[len(s):]
	copy(buf, s)

	a.liveCount++
	a.liveBytes += len(s)

	return Str{alloc: a, buf: buf}
}

// LiveCount returns the number of live (not yet released) strings.
func (a *Allocator) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveCount
}

// LiveBytes returns the total size of live strings.
func (a *Allocator) LiveBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liveBytes
}

func (a *Allocator) release(n int) {
	a.mu.Lock()
	a.liveCount--
	a.liveBytes -= n
	a.mu.Unlock()
}

// Str is an owned text handle. The zero value is "absent". A set handle owns
// its bytes exclusively; Release gives them back exactly once and resets the
// handle to the absent state, so releasing twice is a no-op rather than a
// double-free.
type Str struct {
	alloc *Allocator
	buf   []byte
}

// IsSet reports whether the handle owns text.
func (s Str) IsSet() bool {
	return s.alloc != nil
}

// String returns the owned text, or "" for an absent handle.
func (s Str) String() string {
	return string(s.buf)
}

// Release returns the owned storage to the allocator's accounting and resets
// the handle. Safe to call on an absent handle.
func (s *Str) Release() {
	if s.alloc == nil {
		return
	}
	s.alloc.release(len(s.buf))
	s.alloc = nil
	s.buf = nil
}
