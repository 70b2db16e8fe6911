package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	uerrors "github.com/vango-dev/uidl/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		noColor    bool
		jsonErrors bool
	)

	rootCmd := &cobra.Command{
		Use:   "uidl",
		Short: "A server for the UIDL synchronization protocol",
		Long: `uidl serves UIs over the UIDL protocol.

The server keeps the component tree of every UI, answers client
requests with incremental state changes, and pushes changes over
WebSocket, long-polling or streaming connections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")
	rootCmd.PersistentFlags().BoolVar(&jsonErrors, "json-errors", false, "Print errors as JSON")

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if noColor || !isTerminal(os.Stderr) {
			uerrors.DisableColors()
		}
		printError(os.Stderr, err, jsonErrors)
		os.Exit(1)
	}
}

// printError writes err to w. Structured errors keep their detail and
// suggestion.
func printError(w io.Writer, err error, asJSON bool) {
	var ue *uerrors.UIDLError
	if errors.As(err, &ue) {
		if asJSON {
			fmt.Fprintln(w, ue.FormatJSON())
			return
		}
		fmt.Fprint(w, ue.Format())
		return
	}
	if asJSON {
		fmt.Fprintf(w, "{%q:%q}\n", "message", err.Error())
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
