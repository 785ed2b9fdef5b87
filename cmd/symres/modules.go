package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/symres/internal/demangle"
	"github.com/coral-mesh/symres/internal/modlist"
)

func newModulesCmd() *cobra.Command {
	var pid int

	cmd := &cobra.Command{
		Use:   "modules [--pid <pid>]",
		Short: "List the loaded modules of a process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid == 0 {
				pid = os.Getpid()
			}
			list, err := modlist.ForProcess(pid, logger)
			if err != nil {
				return err
			}
			for _, m := range list.Modules() {
				cmd.Printf("%012x-%012x %s %08x %s\n", m.Start, m.End, m.Perms, m.FileOffset, m.Path)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "Process to inspect (defaults to self)")

	return cmd
}

func newDemangleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demangle <name>...",
		Short: "Demangle symbol names",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range args {
				cmd.Println(demangle.Filter(name))
			}
		},
	}
}
