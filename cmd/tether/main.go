package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tether-go/tether/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┌─┐┌┬┐┬ ┬┌─┐┬─┐
   ║ ├┤  │ ├─┤├┤ ├┬┘
   ╩ └─┘ ┴ ┴ ┴└─┘┴└─
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "tether",
		Short: "External-state stores with a race-free component binding",
		Long: `Tether is a small state layer for live Go components.

A Store holds one value, advances a revision on every write, and
notifies subscribers synchronously; the UseStore binding keeps
components current across the render/commit/effect boundary without
missed updates or redundant re-renders. Stores can persist their
value to a file, SQL, Redis, or S3 backend.

This CLI runs the demo server and inspects persisted state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		stateCmd(),
		initCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if te, ok := err.(*errors.TetherError); ok {
			fmt.Fprint(os.Stderr, te.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// printBanner prints the Tether ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
