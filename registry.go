package symres

import (
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EnvSymbolizerPath overrides the external helper search when set.
const EnvSymbolizerPath = "SYMRES_SYMBOLIZER_PATH"

// defaultTools are the helper names probed on the executable search path, in
// preference order.
var defaultTools = []string{"llvm-symbolizer", "addr2line"}

// slot wraps the published resolver so the interface value can live behind a
// single atomic pointer.
type slot struct {
	r Resolver
}

// current is written at most once in the life of the process: either by Init
// (platform resolver) or by Disable (BaseResolver sentinel). Readers after
// that first publication never race with a writer.
var current atomic.Pointer[slot]

// registryLogger is used during construction. Library consumers that want
// construction logs call SetLogger before Init.
var registryLogger = zerolog.Nop()

// SetLogger sets the logger used when the process-wide resolver is
// constructed. Call before Init or GetOrInit.
func SetLogger(logger zerolog.Logger) {
	registryLogger = logger
}

// Init constructs the platform resolver and publishes it, optionally
// configured to use the external symbolization tool at pathToExternal (pass
// "" to search $SYMRES_SYMBOLIZER_PATH and then $PATH for a default tool).
// If a resolver was already published — by Init or Disable — it is returned
// unchanged; Init is not a reconfiguration call.
//
// Not safe for concurrent first use: the first Init/Disable must be
// externally serialized.
func Init(pathToExternal string) Resolver {
	if s := current.Load(); s != nil {
		return s.r
	}
	r := platformInit(pathToExternal, registryLogger)
	current.Store(&slot{r: r})
	return r
}

// Disable publishes the no-op resolver: symbolization stays off for the life
// of the process. If a resolver was already published it is returned
// unchanged. Same first-use constraint as Init.
func Disable() Resolver {
	if s := current.Load(); s != nil {
		return s.r
	}
	r := &BaseResolver{}
	current.Store(&slot{r: r})
	return r
}

// Get returns the published resolver. Calling Get before Init or Disable is
// a usage error and panics; hot paths rely on Get doing no initialization
// checks beyond a single atomic load.
func Get() Resolver {
	s := current.Load()
	if s == nil {
		panic("symres: Get called before Init or Disable")
	}
	return s.r
}

// GetOrNull returns the published resolver, or nil when none has been
// published yet.
func GetOrNull() Resolver {
	if s := current.Load(); s != nil {
		return s.r
	}
	return nil
}

// GetOrInit returns the published resolver, performing Init("") first if
// nothing has been published. The first call inherits Init's constraint
// against concurrent first-time initialization.
func GetOrInit() Resolver {
	if s := current.Load(); s != nil {
		return s.r
	}
	return Init("")
}

// findExternalTool resolves the helper binary: an explicit path wins, then
// the environment override, then the default tool names on $PATH. Returns ""
// when no helper is available.
func findExternalTool(pathToExternal string) string {
	if pathToExternal != "" {
		return pathToExternal
	}
	if p := os.Getenv(EnvSymbolizerPath); p != "" {
		return p
	}
	for _, name := range defaultTools {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
