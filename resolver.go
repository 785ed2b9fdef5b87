package symres

// Resolver is the capability set every symbolization backend implements.
// Implementations embed BaseResolver and override what they support; the
// defaults all answer "symbolization unavailable", which callers must treat
// as a valid, non-fatal outcome.
//
// Once constructed, a Resolver's methods are safe to call from multiple
// goroutines; variants guard their own caches.
type Resolver interface {
	// ResolveCode fills up to len(frames) descriptors, one per inlined
	// frame found for addr, and returns the count actually filled. Frames
	// beyond the returned count are left untouched. Variants in this module
	// report frames innermost-to-outermost.
	ResolveCode(addr uint64, frames []AddressInfo) int

	// ResolveData resolves a data address into info. A false return means
	// the address could not be resolved; info is left untouched.
	ResolveData(addr uint64, info *DataInfo) bool

	// IsAvailable reports whether the resolver can presently symbolize.
	IsAvailable() bool

	// IsExternalAvailable reports whether resolution is deferred to a
	// separate helper process.
	IsExternalAvailable() bool

	// Flush drops any cached resolution state. Safe to call at any time.
	Flush()

	// Demangle returns a human-readable form of a possibly mangled symbol
	// name. It never fails: a name that cannot be demangled is returned
	// unchanged.
	Demangle(name string) string

	// PrepareForSandboxing pre-acquires whatever the resolver needs to keep
	// working after the process loses filesystem or process-spawn rights.
	PrepareForSandboxing()
}

// BaseResolver is the default "no symbolization available" behavior. It is
// both the embedding base for real variants and the resolver stored by
// Disable.
type BaseResolver struct{}

var _ Resolver = (*BaseResolver)(nil)

// ResolveCode reports no frames and leaves every slot untouched.
func (*BaseResolver) ResolveCode(addr uint64, frames []AddressInfo) int {
	return 0
}

// ResolveData reports failure and leaves info untouched.
func (*BaseResolver) ResolveData(addr uint64, info *DataInfo) bool {
	return false
}

// IsAvailable reports false.
func (*BaseResolver) IsAvailable() bool {
	return false
}

// IsExternalAvailable reports false.
func (*BaseResolver) IsExternalAvailable() bool {
	return false
}

// Flush does nothing.
func (*BaseResolver) Flush() {}

// Demangle returns name unchanged.
func (*BaseResolver) Demangle(name string) string {
	return name
}

// PrepareForSandboxing does nothing.
func (*BaseResolver) PrepareForSandboxing() {}
