// Package main provides the mailaction CLI entry point.
// mailaction extracts actionable tasks from Korean business email.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haneul-labs/mailaction/cmd"
	"github.com/haneul-labs/mailaction/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mailaction",
	Short: "Extract actionable tasks from Korean business email",
	Long: `mailaction processes batches of Korean business email and extracts
actionable tasks for a configured recipient.

For each record the pipeline normalizes the email, decides whether it is
addressed to the recipient as a request, extracts the task with a
completion service, resolves Korean deadline phrases ("금일까지", "이번 주
금요일까지") to concrete UTC instants, then indexes the email for search
and persists the action.

GETTING STARTED:
  mailaction config init       Write a default config file, then edit it
  mailaction auth login        Store your service keys
  mailaction process -f FILE   Run a batch

DISCOVERY:
  mailaction <command> --help  Subcommands, flags, and examples`,
	SilenceUsage: true,
}

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(c *cobra.Command, args []string) {
		info := buildinfo.Get()
		fmt.Fprintln(c.OutOrStdout(), info.String())
	},
}

func init() {
	rootCmd.AddCommand(cmd.ProcessCmd)
	rootCmd.AddCommand(cmd.AuthCmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Set up signal handling for graceful shutdown. The context reaches the
	// batch runner, which stops dispatching and drains in-flight records.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
