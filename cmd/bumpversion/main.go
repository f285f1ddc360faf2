// Command bumpversion prints the release version that follows the one
// given on the command line. Release scripts use it to stamp the next
// build:
//
//	bumpversion 1.2.9   # prints 1.3.0
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"calibrator/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func newCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bumpversion MAJOR.MINOR.PATCH",
		Short: "Print the next release version",
		Long: `Print the version that follows MAJOR.MINOR.PATCH.

The patch number goes up by one. A patch above 9 resets to 0 and carries
into the minor number, and a minor above 9 carries into the major number.`,
		Example:       "  bumpversion 1.2.9",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := version.Increment(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
}

// run executes the command and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n\n%s", err, cmd.UsageString())
		return 1
	}
	return 0
}
