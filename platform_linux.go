//go:build linux

package symres

import (
	"github.com/rs/zerolog"
)

// platformInit builds the platform-appropriate resolver: the external-tool
// variant when a helper binary is found, the in-process ELF variant
// otherwise, and the no-op resolver when the process's own module map cannot
// be read.
func platformInit(pathToExternal string, logger zerolog.Logger) Resolver {
	elf, err := newELFResolver(logger)
	if err != nil {
		logger.Debug().Err(err).Msg("In-process symbolization unavailable")
		return &BaseResolver{}
	}

	if toolPath := findExternalTool(pathToExternal); toolPath != "" {
		logger.Debug().Str("tool", toolPath).Msg("Using external symbolizer helper")
		return newExternalResolver(elf, toolPath, logger)
	}
	return elf
}
