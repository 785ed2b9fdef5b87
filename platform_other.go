//go:build !linux

package symres

import (
	"github.com/rs/zerolog"
)

// platformInit has no in-process backend off Linux; symbolization is
// unavailable and every query degrades to the no-op outcomes.
func platformInit(pathToExternal string, logger zerolog.Logger) Resolver {
	logger.Debug().Msg("No symbolization backend for this platform")
	return &BaseResolver{}
}
