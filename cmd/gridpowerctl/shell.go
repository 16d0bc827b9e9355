package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNotTerminal = errors.New("shell requires an interactive terminal")

func newShellCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive shell",
		Long: `Runs gridpowerctl commands interactively against one server.
Type "exit" or press Ctrl-D to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return errNotTerminal
			}

			if err := opts.client().Health(opts.context(cmd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", opts.server)

			p := prompt.New(
				func(line string) { execLine(opts, line) },
				complete,
				prompt.OptionPrefix("gridpower> "),
				prompt.OptionTitle("gridpowerctl"),
				prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
					return breakline && isExit(in)
				}),
			)
			p.Run()
			return nil
		},
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// execLine runs one shell line as a gridpowerctl invocation against the
// shell's server.
func execLine(opts *globalOptions, line string) {
	args := strings.Fields(line)
	if len(args) == 0 || isExit(line) {
		return
	}
	if args[0] == "shell" {
		fmt.Fprintln(os.Stderr, "Error: already in a shell")
		return
	}

	root := newRootCmd()
	root.SetArgs(append(args, "--server", opts.server, "--timeout", opts.timeout.String()))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true
	}
	return false
}

var shellSuggestions = []prompt.Suggest{
	{Text: "push", Description: "Upload readings from files"},
	{Text: "query", Description: "Query raw readings and daily power"},
	{Text: "daily", Description: "Show per-day statistics"},
	{Text: "export", Description: "Download readings as Parquet"},
	{Text: "rejects", Description: "Show recently rejected rows"},
	{Text: "stats", Description: "Show server statistics"},
	{Text: "inspect", Description: "Summarize a Parquet file"},
	{Text: "exit", Description: "Leave the shell"},
}

var flagSuggestions = []prompt.Suggest{
	{Text: "--from", Description: "Window start"},
	{Text: "--to", Description: "Window end"},
	{Text: "--period", Description: "Window length, e.g. P1D"},
	{Text: "--limit", Description: "Maximum rows"},
	{Text: "--session", Description: "Ingest session id"},
	{Text: "--json", Description: "Raw JSON output"},
	{Text: "--output", Description: "Output file"},
}

func complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if strings.HasPrefix(word, "-") {
		return prompt.FilterHasPrefix(flagSuggestions, word, true)
	}
	if strings.Contains(strings.TrimSpace(d.TextBeforeCursor()), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(shellSuggestions, word, true)
}
