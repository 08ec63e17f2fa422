package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, stamped through -ldflags by the release build.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the gateway version",
	Long: `Show the gateway version along with the commit, build date, and
Go runtime it was compiled with. Include this output when reporting
issues.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("medigate %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		fmt.Printf("%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
