package main

import (
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"mercator-hq/quotagate/pkg/cli"
	"mercator-hq/quotagate/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file, including environment variable
overrides, and print the quota windows it defines.

The exit status is 2 when the configuration is invalid.

Examples:
  # Validate the default config file
  quotagate validate

  # Validate a specific file and print the windows as JSON
  quotagate validate --config /etc/quotagate/quotagate.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// windowReport describes one configured window.
type windowReport struct {
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	Period    string     `json:"period,omitempty"`
	Schedule  string     `json:"schedule,omitempty"`
	NextReset *time.Time `json:"next_reset,omitempty"`
}

type validateReport struct {
	Upstream string         `json:"upstream"`
	BaseURL  string         `json:"base_url"`
	Windows  []windowReport `json:"windows"`
}

func (r validateReport) Header() []string {
	return []string{"WINDOW", "CAPACITY", "REFILL", "NEXT RESET"}
}

func (r validateReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Windows))
	for _, w := range r.Windows {
		refill := w.Period
		if w.Schedule != "" {
			refill = "cron(" + w.Schedule + ")"
		}
		next := "-"
		if w.NextReset != nil {
			next = w.NextReset.Format(time.RFC3339)
		}
		rows = append(rows, []string{w.Name, strconv.Itoa(w.Capacity), refill, next})
	}
	return rows
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	report := buildValidateReport(cfg, time.Now())
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
}

func buildValidateReport(cfg *config.Config, now time.Time) validateReport {
	report := validateReport{
		Upstream: cfg.Upstream.Name,
		BaseURL:  cfg.Upstream.BaseURL,
	}

	for _, w := range cfg.Limits.RateLimitWindows() {
		wr := windowReport{Name: w.Label(), Capacity: w.Capacity}
		if w.Schedule != "" {
			wr.Schedule = w.Schedule
			// Validate has already parsed the expression.
			if sched, err := cron.ParseStandard(w.Schedule); err == nil {
				next := sched.Next(now)
				wr.NextReset = &next
			}
		} else {
			wr.Period = w.Period.String()
		}
		report.Windows = append(report.Windows, wr)
	}
	return report
}
