package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"retriever/internal/api"
	"retriever/internal/feed"
	"retriever/internal/jobs"
)

type statusOutput struct {
	Daemon *api.DaemonStatus `json:"daemon"`
	Jobs   []*jobs.Job       `json:"jobs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		active  bool
		all     bool
		states  []string
		backend string
		kind    string
	)
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon status and jobs, or one job in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if active && all {
				return errors.New("--active and --all are mutually exclusive")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			now := time.Now()

			if len(args) == 1 {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, job)
				}
				printJob(out, job, now, shouldColorize(out))
				return nil
			}

			scope := feed.ScopeActive
			if all {
				scope = feed.ScopeAll
			}
			list, err := client.Jobs(cmd.Context(), api.JobQuery{Filter: scope, States: states, Backend: backend, Kind: kind})
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, statusOutput{Daemon: status, Jobs: list})
			}
			printDaemonStatus(out, client.BaseURL(), status, shouldColorize(out))
			fmt.Fprintln(out)
			if len(list) == 0 {
				if scope == feed.ScopeActive && len(states) == 0 {
					fmt.Fprintln(out, "No active jobs")
				} else {
					fmt.Fprintln(out, "No matching jobs")
				}
				return nil
			}
			fmt.Fprint(out, renderTable(jobColumns, jobRows(list, now)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "Only queued and running jobs (default)")
	cmd.Flags().BoolVar(&all, "all", false, "Include finished jobs")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state (overrides --active/--all)")
	cmd.Flags().StringVar(&backend, "backend", "", "Filter by backend")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by job kind")
	return cmd
}

func printDaemonStatus(out io.Writer, address string, status *api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runState := statusOK
	runDetail := fmt.Sprintf("pid %d, %d workers", status.PID, status.Workflow.Workers)
	if !status.Workflow.Running {
		runState = statusWarn
		runDetail = "workers stopped"
	}
	fmt.Fprintln(out, renderStatusLine("Workers", runState, runDetail, colorize))
	fmt.Fprintln(out, renderStatusLine("API", statusInfo, address, colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
	}
	for _, check := range status.Preflight {
		if !check.Passed {
			fmt.Fprintln(out, renderStatusLine(check.Name, statusError, check.Detail, colorize))
		}
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, state := range jobs.AllStates {
		count := status.Workflow.JobStats[state]
		fmt.Fprintln(out, renderStatusLine(titleCase(string(state)), stateKind(state), fmt.Sprintf("%d", count), colorize))
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id...>",
		Short: "Cancel queued or running jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			responses := make([]*api.CancelResponse, 0, len(args))
			for _, id := range args {
				resp, err := client.Cancel(cmd.Context(), id)
				if err != nil {
					return err
				}
				responses = append(responses, resp)
				if ctx.jsonOutput {
					continue
				}
				switch {
				case !resp.Accepted && resp.Job != nil:
					fmt.Fprintf(out, "Job %s already %s\n", id, resp.Job.State)
				case resp.Job != nil && resp.Job.State == jobs.StateCancelled:
					fmt.Fprintf(out, "Cancelled job %s (%s)\n", id, resp.Job.CancelPoint)
				default:
					fmt.Fprintf(out, "Cancellation requested for job %s\n", id)
				}
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, responses)
			}
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued job %s\n", job.ID)
			return nil
		},
	}
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge [job-id...]",
		Short: "Delete finished jobs from the store",
		Long:  "Delete the named jobs, or with --older-than every finished job last updated before that age.",
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("older-than") {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("older-than") {
				removed, err := client.PurgeFinished(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, api.PurgeResponse{Purged: removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d finished job(s) older than %s\n", removed, olderThan)
				return nil
			}
			for _, id := range args {
				if err := client.Purge(cmd.Context(), id); err != nil {
					return err
				}
				if !ctx.jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "Purged job %s\n", id)
				}
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, map[string][]string{"purged": args})
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Purge every finished job last updated before this age (e.g. 720h)")
	return cmd
}
