package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/quotagate/pkg/cli"
	"mercator-hq/quotagate/pkg/config"
	"mercator-hq/quotagate/pkg/server"
)

var limitsFlags struct {
	addr    string
	format  string
	timeout time.Duration
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show the quota windows of a running sidecar",
	Long: `Query the /limits endpoint of a running sidecar and print the remaining
capacity and the number of waiting callers for every window.

Reading the status never consumes quota.

Examples:
  # Query the sidecar on the default address
  quotagate limits

  # Query another instance as JSON
  quotagate limits --addr 10.0.0.5:8080 --format json`,
	RunE: showLimits,
}

func init() {
	rootCmd.AddCommand(limitsCmd)

	limitsCmd.Flags().StringVar(&limitsFlags.addr, "addr", config.DefaultListenAddress, "sidecar address (host:port or URL)")
	limitsCmd.Flags().StringVar(&limitsFlags.format, "format", "text", "output format: text, json")
	limitsCmd.Flags().DurationVar(&limitsFlags.timeout, "timeout", 5*time.Second, "request timeout")
}

// limitsTable renders a /limits response as columns.
type limitsTable server.LimitsResponse

func (t limitsTable) Header() []string {
	return []string{"WINDOW", "SHAPE", "AVAILABLE", "CAPACITY", "WAITING"}
}

func (t limitsTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Windows))
	for _, w := range t.Windows {
		available := strconv.FormatInt(w.Available, 10)
		if w.Disposed {
			available = "closed"
		}
		rows = append(rows, []string{
			w.Name,
			w.Window,
			available,
			strconv.FormatInt(w.Capacity, 10),
			strconv.Itoa(w.Waiting),
		})
	}
	return rows
}

func showLimits(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(limitsFlags.format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), limitsFlags.timeout)
	defer cancel()

	status, err := fetchLimits(ctx, limitsFlags.addr)
	if err != nil {
		return cli.NewCommandError("failed to fetch limits from "+limitsFlags.addr, err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), status)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), limitsTable(*status))
}

func fetchLimits(ctx context.Context, addr string) (*server.LimitsResponse, error) {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+server.LimitsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, server.LimitsPath)
	}

	var status server.LimitsResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}
