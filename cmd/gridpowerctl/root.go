package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xtxerr/gridpower/internal/client"
)

// EnvServer overrides the default server URL.
const EnvServer = "GRIDPOWER_SERVER"

type globalOptions struct {
	server  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "gridpowerctl",
		Short: "Push readings to and query a gridpower server",
		Long: `gridpowerctl talks to a gridpowerd instance over HTTP.
It uploads newline-separated readings, queries raw readings with derived
daily power, and inspects rejected rows and server statistics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := client.DefaultConfig().BaseURL
	if env := os.Getenv(EnvServer); env != "" {
		defaultServer = env
	}

	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "server base URL (or "+EnvServer+" env)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newPushCmd(opts),
		newQueryCmd(opts),
		newDailyCmd(opts),
		newExportCmd(opts),
		newRejectsCmd(opts),
		newStatsCmd(opts),
		newInspectCmd(),
		newShellCmd(opts),
	)

	return root
}

func (o *globalOptions) client() *client.Client {
	return client.New(&client.Config{
		BaseURL:        o.server,
		RequestTimeout: o.timeout,
	})
}

func (o *globalOptions) context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
