package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/quotagate/pkg/cli"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "quotagate",
	Short: "Quotagate - rate-limiting sidecar for third-party APIs",
	Long: `Quotagate sits between your services and a rate-limited third-party API.

Every forwarded call waits until all configured quota windows have capacity,
so callers see added latency instead of 429 responses. Windows refill on a
fixed period or on a cron schedule, and the sidecar exports Prometheus
metrics for waits, backpressure and remaining capacity.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "quotagate.yaml", "config file path")
}
