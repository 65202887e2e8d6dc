/*
Package cli provides command-line helpers shared by the quotagate commands.

Output Formatting:

Commands print results as aligned text or JSON, selected with --format:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Results that implement Table render as columns in text mode.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Errors:

ConfigError marks a configuration that could not be loaded or validated.
ExitCode maps it to exit status 2 and every other error to 1, so scripts can
tell a bad config from a runtime failure.
*/
package cli
