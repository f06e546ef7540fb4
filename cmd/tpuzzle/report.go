package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/transformer-puzzle/pkg/client"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		format     string
		sessionID  string
		from, to   string
		outputFile string
	)
	reportCmd := &cobra.Command{
		Use:   "report [validations|events]",
		Short: "Download a CSV or JSON report of the event journal",
		Long: `report asks the daemon for a report over [from, to], the last 24 hours
by default. validations lists every check with its verdict; events lists the
raw journal.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"validations", "events"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ro := client.ReportOptions{Type: "validations", Format: format, SessionID: sessionID}
			if len(args) == 1 {
				ro.Type = args[0]
			}
			var err error
			if ro.From, err = parseTime("from", from); err != nil {
				return err
			}
			if ro.To, err = parseTime("to", to); err != nil {
				return err
			}

			body, err := opts.client().Report(cmd.Context(), ro)
			if err != nil {
				return err
			}
			if outputFile != "" {
				if err := os.WriteFile(outputFile, body, 0644); err != nil {
					return fmt.Errorf("write report to %s: %w", outputFile, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", outputFile)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	reportCmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	reportCmd.Flags().StringVar(&sessionID, "session", "", "only this session")
	reportCmd.Flags().StringVar(&from, "from", "", "start of the range, RFC3339")
	reportCmd.Flags().StringVar(&to, "to", "", "end of the range, RFC3339 (default now)")
	reportCmd.Flags().StringVar(&outputFile, "out", "", "write the report to this file")
	return reportCmd
}

func newAdminCmd(opts *rootOptions) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Daemon maintenance; needs --token when the daemon sets one",
	}

	var retention time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop (or archive) journal events older than --retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if retention <= 0 {
				return fmt.Errorf("--retention must be positive, got %s", retention)
			}
			n, err := opts.client().Prune(cmd.Context(), retention)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"pruned_count": n, "retention": retention.String()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d events older than %s\n", n, retention)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&retention, "retention", 720*time.Hour, "keep events younger than this")

	adminCmd.AddCommand(pruneCmd)
	return adminCmd
}

func parseTime(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: want RFC3339", name, value)
	}
	return t, nil
}
