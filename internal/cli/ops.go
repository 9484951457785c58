package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"genesis/internal/bootstrap"
	"genesis/internal/health"
	"genesis/internal/infra"
	"genesis/internal/orchestrator"
)

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show project counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, stats)
			}
			fmt.Fprintf(out, "Total: %d\n", stats.Total)
			for _, status := range []string{"Pending", "Generating", "Completed", "Failed"} {
				fmt.Fprintf(out, "  %-10s %d\n", status, stats.ByStatus[status])
			}
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "Status:  %s (version %s, up %s)\n", report.Status, report.Version,
				(time.Duration(report.Uptime) * time.Second).String())
			names := make([]string, 0, len(report.Services))
			for name := range report.Services {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				svc := report.Services[name]
				line := fmt.Sprintf("  %-10s %-9s %6.0fms", name, svc.Status, svc.ResponseTime*1000)
				if svc.Error != nil {
					line += "  " + *svc.Error
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "Jobs:    %d active, %d queued\n", report.System.ActiveJobs, report.System.QueuedJobs)
			if report.Status != health.StatusHealthy {
				return fmt.Errorf("service is %s", report.Status)
			}
			return nil
		},
	}
}

// newRecoverCmd works on the job store directly, so it runs with the server's
// environment instead of the API URL.
func newRecoverCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Fail projects stuck in Generating after a crash",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.JobStore == infra.StoreMemory {
				return fmt.Errorf("recover needs a durable JOB_STORE, got %q", cfg.JobStore)
			}
			logger := infra.NewLogger(cfg).With().Str("cmd", "recover").Logger()

			store, err := bootstrap.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			orch := orchestrator.New(store.Repo, nil, nil, orchestrator.Options{Logger: &logger})
			n, err := orch.FailStale(cmd.Context(), staleAfter(olderThan, cfg))
			if err != nil {
				return fmt.Errorf("recover: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d stale projects as Failed\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0,
		"only fail projects idle for longer than this (default: the server's generation budget)")
	return cmd
}

// staleAfter matches the threshold the server applies at startup unless the
// operator chose one.
func staleAfter(olderThan time.Duration, cfg *infra.Config) time.Duration {
	if olderThan > 0 {
		return olderThan
	}
	return cfg.GenerationBudget()
}
