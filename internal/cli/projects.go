package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genesis/internal/domain"
)

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		backend  string
		meta     []string
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Start a project generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMeta(meta)
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			id, err := opts.client.Generate(cmd.Context(), prompt, backend, metadata)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			out := cmd.OutOrStdout()
			if !wait {
				fmt.Fprintln(out, id)
				return nil
			}
			fmt.Fprintf(out, "Project %s started\n", id)
			return watch(cmd, opts, id, interval)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "generation backend (ollama or openai)")
	cmd.Flags().StringSliceVarP(&meta, "meta", "m", nil, "metadata as key=value, repeatable")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the project to finish")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval with --wait")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	var showFiles bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := opts.client.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, job)
			}
			printJob(out, job, showFiles)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showFiles, "files", "f", false, "print file contents")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var (
		status  string
		backend string
		limit   int
		skip    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ListFilter{Limit: limit, Skip: skip}
			if status != "" {
				filter.Status = domain.StatusPtr(domain.Status(status))
			}
			if backend != "" {
				b := domain.Backend(backend)
				filter.Backend = &b
			}
			jobs, err := opts.client.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return printJSON(out, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No projects found.")
				return nil
			}
			for _, job := range jobs {
				fmt.Fprintf(out, "%-36s  %-10s  %-6s  %s  %s\n",
					job.ID, job.Status, job.Backend, job.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(job.Prompt, 48))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status")
	cmd.Flags().StringVar(&backend, "backend", "", "filter by backend")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	cmd.Flags().IntVar(&skip, "skip", 0, "results to skip")
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a project until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd, opts, args[0], interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

func newArchiveCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Download a completed project as a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if output == "" {
				output = id + ".zip"
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			n, err := opts.client.Archive(cmd.Context(), id, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(output)
				return fmt.Errorf("archive %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <id>.zip)")
	return cmd
}

func watch(cmd *cobra.Command, opts *options, id string, interval time.Duration) error {
	out := cmd.OutOrStdout()
	job, err := opts.client.Wait(cmd.Context(), id, interval, func(j *domain.Job) {
		fmt.Fprintf(out, "%s  %s\n", j.UpdatedAt.Local().Format("15:04:05"), j.Status)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", id, err)
	}
	if opts.asJSON {
		return printJSON(out, job)
	}
	printJob(out, job, false)
	if job.Status == domain.StatusFailed {
		return fmt.Errorf("project %s failed", id)
	}
	return nil
}

func printJob(out io.Writer, job *domain.Job, showFiles bool) {
	fmt.Fprintf(out, "ID:       %s\n", job.ID)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Backend:  %s\n", job.Backend)
	fmt.Fprintf(out, "Prompt:   %s\n", job.Prompt)
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:  %s\n", job.UpdatedAt.Local().Format(time.RFC3339))
	if job.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", job.Error)
	}
	if job.Output != "" {
		fmt.Fprintf(out, "Output:   %s\n", truncate(job.Output, 200))
	}
	if len(job.Files) == 0 {
		return
	}
	fmt.Fprintf(out, "Files (%d):\n", len(job.Files))
	for _, f := range job.Files {
		fmt.Fprintf(out, "  %s (%s, %d bytes)\n", f.Name, f.Language, len(f.Content))
		if showFiles {
			fmt.Fprintln(out, indent(f.Content, "    "))
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		meta[strings.TrimSpace(k)] = v
	}
	return meta, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}
