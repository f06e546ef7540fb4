package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/transformer-puzzle/pkg/archive"
	"github.com/rmax-ai/transformer-puzzle/pkg/blob"
)

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	var dir string
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect journal archives written by tpuzzle-d -archive-dir",
	}
	archiveCmd.PersistentFlags().StringVar(&dir, "dir", "archive", "archive directory")

	archiveCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List archived batches",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				keys, err := archive.List(cmd.Context(), blob.NewLocalStore(dir))
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), keys)
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <key>",
			Short: "Print the events of one archived batch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				events, err := archive.Read(cmd.Context(), blob.NewLocalStore(dir), args[0])
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "INGESTED\tTYPE\tSESSION\tSTAGE\tORIGIN")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						e.TsIngest.Format("2006-01-02 15:04:05"), e.EventType, e.SessionID, e.Stage, e.Source.OriginKind)
				}
				return w.Flush()
			},
		},
	)
	return archiveCmd
}
