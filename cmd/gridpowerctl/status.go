package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRejectsCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var session string

	cmd := &cobra.Command{
		Use:   "rejects",
		Short: "Show recently rejected rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			rejects, err := opts.client().Rejects(opts.context(cmd), limit, session)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rejects) == 0 {
				fmt.Fprintln(out, "No rejected rows")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tROW\tREASONS")
			for _, r := range rejects {
				fmt.Fprintf(tw, "%s\t%q\t%s\n", humanize.Time(r.At), r.Row, strings.Join(r.Reasons, "; "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of rows")
	cmd.Flags().StringVar(&session, "session", "", "only rows of this ingest session")
	return cmd
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show server statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Stats(opts.context(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}

			ing := st.Ingestion
			fmt.Fprintf(out, "Running:    %v (up %s)\n", st.Running, st.Uptime.Round(time.Second))
			fmt.Fprintf(out, "Sessions:   %s started, %s active, %s failed\n",
				humanize.Comma(ing.SessionsStarted), humanize.Comma(ing.SessionsActive), humanize.Comma(ing.SessionsFailed))
			fmt.Fprintf(out, "Received:   %s in %s chunks (%s failed)\n",
				humanize.Bytes(uint64(ing.BytesReceived)), humanize.Comma(ing.ChunksProcessed), humanize.Comma(ing.ChunksFailed))
			fmt.Fprintf(out, "Rows:       %s accepted, %s rejected, %s blank\n",
				humanize.Comma(ing.RowsAccepted), humanize.Comma(ing.RowsRejected), humanize.Comma(ing.RowsSkipped))
			for ch, n := range st.Store.Readings {
				fmt.Fprintf(out, "Stored:     %s %s\n", humanize.Comma(int64(n)), ch)
			}
			fmt.Fprintf(out, "Quarantine: %d/%d (%s dropped)\n",
				st.Quarantine.Count, st.Quarantine.Capacity, humanize.Comma(st.Quarantine.DropCount))
			fmt.Fprintf(out, "Queries:    %s executed, %s exports\n",
				humanize.Comma(st.Query.QueriesExecuted), humanize.Comma(st.Query.Exports))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}
