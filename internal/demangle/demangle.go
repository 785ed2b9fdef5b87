// Package demangle turns mangled C++/Rust symbol names into human-readable
// form. Demangling is best effort: a name that cannot be demangled comes back
// unchanged, and no input is an error.
package demangle

import (
	"github.com/ianlancetaylor/demangle"
)

// Filter demangles name, returning it unchanged when it is not a mangled
// symbol or when demangling fails for any reason.
func Filter(name string) (out string) {
	if name == "" {
		return name
	}
	defer func() {
		if recover() != nil {
			out = name
		}
	}()
	return demangle.Filter(name, demangle.NoClones)
}
