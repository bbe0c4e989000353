// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/flowd-org/slicerwrap/cmd.Version=...".
var (
	Version = "dev"
	Commit  = "none"
)

// NewRootCmd assembles the slwrap command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slwrap",
		Short:         "Run 3D Slicer CLI modules as typed commands",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addCommonFlags(root)

	root.AddCommand(NewModulesCmd())
	root.AddCommand(NewDescribeCmd())
	root.AddCommand(NewCmdlineCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewRunsCmd())
	root.AddCommand(NewWorkflowCmd())
	root.AddCommand(NewCacheCmd())
	root.AddCommand(NewCompletionCmd(root))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func addCommonFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file (default ./slwrap.yaml when present)")
	pf.String("plugins-dir", "", "Directory holding CLI module executables")
	pf.String("launcher", "", `Command prefix for every module, e.g. "Slicer --launch"`)
	pf.String("schema-flag", "", "Flag that makes a module print its XML description")
	pf.String("work-dir", "", "Run directory and base for default output filenames")
	pf.String("data-dir", "", "Directory for the run journal and schema cache")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.CountP("verbose", "v", "Increase verbosity")
}

// exitError carries a module's exit status out of Execute.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) && ee.code > 0 {
		return ee.code
	}
	return 1
}
