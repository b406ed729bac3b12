// Command inspector prints what the gateway would send for a session key:
// the granted selectors, the permission set and the classification of a
// raw infra error. It makes no network calls.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inspector",
		Short:         "Inspect session-key grants and error classification offline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newSelectorsCmd(), newGrantCmd(), newClassifyCmd())
	return root
}
