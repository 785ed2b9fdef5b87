package symres

// resetRegistry returns the process-wide slot to the uninitialized state so
// lifecycle tests can exercise first publication repeatedly.
func resetRegistry() {
	current.Store(nil)
}

// allocLiveCount exposes the descriptor text allocator's live accounting.
func allocLiveCount() int {
	return textAlloc.LiveCount()
}
