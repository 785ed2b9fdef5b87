// Package symres maps raw instruction and data addresses of the running
// process to human-readable source locations (function, file, line, column,
// containing module). It is built for runtime instrumentation tools — memory
// and thread error detectors — that need diagnostics from inside intercepted
// allocation and fault paths, so descriptor text is carried by a restricted
// low-level allocator and never the ambient one.
//
// A process holds at most one Resolver, published through the registry
// exactly once: Init or Disable perform the only write, and Get, GetOrNull
// and GetOrInit read the published value without synchronization cost.
// Init and Disable are not safe for concurrent first use; perform process
// startup from a single goroutine.
//
// Every "cannot symbolize" outcome is non-fatal by design: zero frames from
// ResolveCode, false from ResolveData, or IsAvailable() returning false all
// mean the caller should print the raw address instead.
package symres
