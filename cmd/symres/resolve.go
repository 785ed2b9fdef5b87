package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/symres/internal/elfres"
	"github.com/coral-mesh/symres/internal/extres"
)

func newResolveCmd() *cobra.Command {
	var (
		binaryPath     string
		symbolizerPath string
		maxFrames      int
		dataMode       bool
	)

	cmd := &cobra.Command{
		Use:   "resolve --binary <path> <address>...",
		Short: "Resolve addresses in a binary to source locations",
		Long: `Resolve translates virtual addresses within a binary into function,
file, line and column, one line per inlined frame (innermost first).
Addresses that cannot be symbolized are printed raw; that is an expected
outcome for stripped binaries, not an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := parseAddrs(args)
			if err != nil {
				return err
			}

			if symbolizerPath == "" {
				symbolizerPath = cfg.Symbolizer.Path
			}
			if symbolizerPath != "" {
				return resolveExternal(cmd, symbolizerPath, binaryPath, addrs, maxFrames, dataMode)
			}
			return resolveInProcess(cmd, binaryPath, addrs, maxFrames, dataMode)
		},
	}

	cmd.Flags().StringVar(&binaryPath, "binary", "", "Binary to resolve addresses against (required)")
	cmd.Flags().StringVar(&symbolizerPath, "symbolizer", "", "External symbolizer helper to use instead of the built-in reader")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 8, "Maximum inlined frames per address")
	cmd.Flags().BoolVar(&dataMode, "data", false, "Resolve data addresses instead of code addresses")
	_ = cmd.MarkFlagRequired("binary")

	return cmd
}

func resolveInProcess(cmd *cobra.Command, binaryPath string, addrs []uint64, maxFrames int, dataMode bool) error {
	im, err := elfres.Open(binaryPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", binaryPath, err)
	}
	defer im.Close() // nolint:errcheck

	for _, addr := range addrs {
		if dataMode {
			sym, ok := im.ResolveData(addr)
			if !ok {
				cmd.Printf("0x%x ??\n", addr)
				continue
			}
			cmd.Printf("0x%x %s [0x%x, %d bytes]\n", addr, sym.Name, sym.Start, sym.Size)
			continue
		}

		frames := im.ResolveCode(addr, maxFrames)
		if len(frames) == 0 {
			cmd.Printf("0x%x ?? (%s)\n", addr, binaryPath)
			continue
		}
		for _, f := range frames {
			printFrame(cmd, addr, f.Function, f.File, f.Line, f.Column, binaryPath)
		}
	}
	return nil
}

func resolveExternal(cmd *cobra.Command, toolPath, binaryPath string, addrs []uint64, maxFrames int, dataMode bool) error {
	client := extres.NewClient(toolPath, logger)
	defer client.Close()

	for _, addr := range addrs {
		if dataMode {
			sym, err := client.SymbolizeData(binaryPath, addr)
			if err != nil {
				cmd.Printf("0x%x ??\n", addr)
				continue
			}
			cmd.Printf("0x%x %s [0x%x, %d bytes]\n", addr, sym.Name, sym.Start, sym.Size)
			continue
		}

		frames, err := client.SymbolizeCode(binaryPath, addr, maxFrames)
		if err != nil || len(frames) == 0 {
			cmd.Printf("0x%x ?? (%s)\n", addr, binaryPath)
			continue
		}
		for _, f := range frames {
			printFrame(cmd, addr, f.Function, f.File, f.Line, f.Column, binaryPath)
		}
	}
	return nil
}

func printFrame(cmd *cobra.Command, addr uint64, function, file string, line, column int, module string) {
	switch {
	case function == "":
		cmd.Printf("0x%x ?? (%s)\n", addr, module)
	case file == "":
		cmd.Printf("0x%x %s (%s)\n", addr, function, module)
	case column > 0:
		cmd.Printf("0x%x %s %s:%d:%d (%s)\n", addr, function, file, line, column, module)
	default:
		cmd.Printf("0x%x %s %s:%d (%s)\n", addr, function, file, line, module)
	}
}

func parseAddrs(args []string) ([]uint64, error) {
	addrs := make([]uint64, 0, len(args))
	for _, arg := range args {
		// Base 0 accepts both 0x-prefixed and decimal forms.
		addr, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", arg, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
