package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPushCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push [file...]",
		Short: "Upload readings",
		Long: `Uploads newline-separated readings such as "1700000000 3.3 Voltage".
Each file is sent as one ingest session. Without files, or with "-",
readings are read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}

			c := opts.client()
			for _, name := range args {
				var r io.Reader = cmd.InOrStdin()
				size := ""

				if name != "-" {
					f, err := os.Open(name)
					if err != nil {
						return fmt.Errorf("opening %s: %w", name, err)
					}
					defer f.Close()
					r = f

					if fi, err := f.Stat(); err == nil {
						size = " (" + humanize.Bytes(uint64(fi.Size())) + ")"
					}
				}

				session, err := c.Push(opts.context(cmd), r)
				if err != nil {
					return fmt.Errorf("pushing %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s: session %s\n", name, size, session)
			}
			return nil
		},
	}
}
