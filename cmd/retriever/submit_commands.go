package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"retriever/internal/api"
	"retriever/internal/jobs"
)

// submitOptions are the flags shared by submit, search and save.
type submitOptions struct {
	prefer       []string
	sync         bool
	waitInterval time.Duration
	passcode     string
	token        string
}

func (o *submitOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.prefer, "prefer", nil, "Backend preference order for this job (comma separated)")
	cmd.Flags().BoolVar(&o.sync, "sync", false, "Wait for the job to finish and print the result")
	cmd.Flags().DurationVar(&o.waitInterval, "wait-interval", 500*time.Millisecond, "Polling interval used with --sync")
}

func (o *submitOptions) bindCredentials(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.passcode, "passcode", "", "Share passcode applied to every reference")
	cmd.Flags().StringVar(&o.token, "token", "", "Share token applied to every reference")
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	var (
		query     string
		mediaType string
		limit     int
		dest      string
		validate  bool
		filters   map[string]string
	)
	cmd := &cobra.Command{
		Use:   "submit <search|download|validate|save> [ref...]",
		Short: "Submit a job to the daemon",
		Long: "Submit a job. References are positional for download, validate and save;\n" +
			"search takes its query from --query or the remaining arguments.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := jobs.ParseKind(args[0])
			if err != nil {
				return err
			}
			target := jobs.Target{
				MediaType:   mediaType,
				Limit:       limit,
				Destination: dest,
				Validate:    validate,
				Passcode:    opts.passcode,
				Token:       opts.token,
				Filters:     filters,
			}
			if kind == jobs.KindSearch {
				target.Query = strings.TrimSpace(query)
				if target.Query == "" {
					target.Query = strings.Join(args[1:], " ")
				}
			} else {
				target.Refs = args[1:]
			}
			return submitJob(cmd, ctx, kind, target, opts)
		},
	}
	opts.bind(cmd)
	opts.bindCredentials(cmd)
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search query")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "Media type hint (album, track, playlist, artist)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of search candidates")
	cmd.Flags().StringVar(&dest, "dest", "", "Download destination directory")
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate candidates before committing (search and save)")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "Backend specific search filters (key=value)")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	var (
		mediaType string
		limit     int
		validate  bool
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search backends for candidates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := jobs.Target{
				Query:     strings.Join(args, " "),
				MediaType: mediaType,
				Limit:     limit,
				Validate:  validate,
			}
			return submitJob(cmd, ctx, jobs.KindSearch, target, opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&mediaType, "media-type", "", "Media type hint")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of candidates")
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate candidates and keep only usable ones")
	return cmd
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "save <share-url...>",
		Short: "Validate share links and hand them off to the cloud drive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := jobs.Target{Refs: args, Passcode: opts.passcode, Token: opts.token}
			return submitJob(cmd, ctx, jobs.KindSave, target, opts)
		},
	}
	opts.bind(cmd)
	opts.bindCredentials(cmd)
	return cmd
}

func submitJob(cmd *cobra.Command, ctx *commandContext, kind jobs.Kind, target jobs.Target, opts submitOptions) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	resp, err := client.Submit(cmd.Context(), api.SubmitRequest{
		Kind:              string(kind),
		Target:            target,
		BackendPreference: opts.prefer,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !opts.sync {
		if ctx.jsonOutput {
			return writeJSON(cmd, resp)
		}
		fmt.Fprintf(out, "Queued %s job %s\n", kind, resp.JobID)
		return nil
	}

	var lastLine string
	onUpdate := func(job *jobs.Job) {
		if ctx.jsonOutput || job.State.IsTerminal() {
			return
		}
		line := fmt.Sprintf("%s %s %s", job.State, formatProgress(job), strings.TrimSpace(job.Progress.Message))
		if job.Backend != "" {
			line = job.Backend + ": " + line
		}
		if line != lastLine {
			fmt.Fprintln(out, strings.TrimSpace(line))
			lastLine = line
		}
	}
	job, err := client.Wait(cmd.Context(), resp.JobID, opts.waitInterval, onUpdate)
	if err != nil {
		return err
	}
	if ctx.jsonOutput {
		if err := writeJSON(cmd, job); err != nil {
			return err
		}
	} else {
		printJob(out, job, time.Now(), shouldColorize(out))
	}
	if job.State != jobs.StateCompleted {
		return &jobFailedError{job: job}
	}
	return nil
}
