package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/xtxerr/gridpower/internal/client"
	"github.com/xtxerr/gridpower/internal/storage/parquet"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

func addWindowFlags(cmd *cobra.Command, w *client.Window) {
	cmd.Flags().StringVar(&w.From, "from", "", "window start, ISO-8601 (required)")
	cmd.Flags().StringVar(&w.To, "to", "", "window end, ISO-8601")
	cmd.Flags().StringVar(&w.Period, "period", "", "window length as ISO-8601 duration, e.g. P1D (replaces --to)")
	cmd.MarkFlagRequired("from")
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var w client.Window
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query raw readings and daily power",
		Long: `Returns every reading strictly inside the window, followed by one Power
point per day that has both current and voltage readings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := opts.client().Query(opts.context(cmd), w)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, points)
			}
			if len(points) == 0 {
				fmt.Fprintln(out, "No readings in window")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSERIES\tVALUE")
			var power int
			for _, p := range points {
				series := "reading"
				if p.IsPower() {
					series = p.Name
					power++
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\n", p.Time, series, p.Value)
			}
			tw.Flush()

			fmt.Fprintf(out, "%d readings, %d power points\n", len(points)-power, power)
			return nil
		},
	}

	addWindowFlags(cmd, &w)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON array")
	return cmd
}

func newDailyCmd(opts *globalOptions) *cobra.Command {
	var w client.Window

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show per-day statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := opts.client().Daily(opts.context(cmd), w)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No readings in window")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DAY\tCHANNEL\tCOUNT\tMEAN\tMIN\tMAX\tP50\tP95\tP99")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%s\t%s\t%s\n",
					s.Day[:10], s.Channel, humanize.Comma(s.Count),
					s.Mean, s.Min, s.Max, percentile(s, s.P50), percentile(s, s.P95), percentile(s, s.P99))
			}
			return tw.Flush()
		},
	}

	addWindowFlags(cmd, &w)
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var w client.Window
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download readings as a Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}

			n, err := opts.client().Export(opts.context(cmd), w, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(output)
				return err
			}

			info, err := parquet.GetFileInfo(output)
			if err != nil {
				return fmt.Errorf("verifying %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %s rows, %s\n",
				output, humanize.Comma(info.NumRows), humanize.Bytes(uint64(n)))
			return nil
		},
	}

	addWindowFlags(cmd, &w)
	cmd.Flags().StringVarP(&output, "output", "o", "gridpower.parquet", "output file")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.parquet>",
		Short: "Summarize an exported Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := parquet.GetFileInfo(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:  %s\n", info.Path)
			fmt.Fprintf(out, "Size:  %s\n", humanize.Bytes(uint64(info.Size)))
			fmt.Fprintf(out, "Rows:  %s\n", humanize.Comma(info.NumRows))
			for _, ch := range types.AllChannels() {
				fmt.Fprintf(out, "  %-8s %s\n", ch, humanize.Comma(int64(info.Channels[ch])))
			}
			return nil
		},
	}
}

// percentile renders one percentile column, "-" when the server computed none.
func percentile(s types.DaySummary, v *float64) string {
	if !s.HasPercentiles() || v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
