// Package cli provides the genesisctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"genesis/internal/apiclient"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	apiURL  string
	timeout time.Duration
	asJSON  bool

	client *apiclient.Client
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "genesisctl",
		Short: "Submit and inspect project generations",
		Long: `genesisctl talks to a running genesis API.

Examples:
  genesisctl generate "build a todo app in go" --wait
  genesisctl list --status Failed
  genesisctl watch 3f2a...
  genesisctl health`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.client = apiclient.New(opts.apiURL, &http.Client{Timeout: opts.timeout})
		},
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("GENESIS_API_URL", "http://127.0.0.1:8080"), "genesis API base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	root.AddCommand(
		newGenerateCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newWatchCmd(opts),
		newArchiveCmd(opts),
		newStatsCmd(opts),
		newHealthCmd(opts),
		newRecoverCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx := context.Background()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
