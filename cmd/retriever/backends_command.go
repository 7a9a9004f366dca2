package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"retriever/internal/feed"
)

func newBackendsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends with their capabilities and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.Backends(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			_, err = out.Write([]byte(renderBackends(list, time.Now(), shouldColorize(out))))
			return err
		},
	}
}

func renderBackends(list []feed.BackendStatus, now time.Time, colorize bool) string {
	rows := make([][]string, 0, len(list))
	for _, b := range list {
		caps := make([]string, 0, len(b.Capabilities))
		for _, k := range b.Capabilities {
			caps = append(caps, string(k))
		}
		status := string(b.Status)
		if colorize {
			status = kindStyles[healthKind(b.Status)].Render(status)
		}
		lastSuccess := "-"
		if b.LastSuccess != nil {
			lastSuccess = relativeTime(*b.LastSuccess, now)
		}
		rows = append(rows, []string{b.Name, strings.Join(caps, ", "), status, lastSuccess, b.Detail})
	}
	return renderTable([]column{
		{header: "Backend"},
		{header: "Capabilities"},
		{header: "Health"},
		{header: "Last success"},
		{header: "Detail", maxWidth: 60},
	}, rows)
}
