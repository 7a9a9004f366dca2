package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"retriever/internal/jobs"
)

var titleCaser = cases.Title(language.English)

func titleCase(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

// relativeTime renders t relative to now, or "-" for the zero time.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func formatProgress(job *jobs.Job) string {
	p := job.Progress
	switch {
	case job.State == jobs.StateQueued:
		return "-"
	case p.BytesTotal > 0:
		return fmt.Sprintf("%.0f%% (%s / %s)", p.Percent, humanize.IBytes(uint64(p.BytesDone)), humanize.IBytes(uint64(p.BytesTotal)))
	case p.ItemsTotal > 0:
		return fmt.Sprintf("%.0f%% (%d/%d)", p.Percent, p.ItemsDone, p.ItemsTotal)
	default:
		return fmt.Sprintf("%.0f%%", p.Percent)
	}
}

// jobTarget summarizes the target for table display.
func jobTarget(job *jobs.Job) string {
	if q := strings.TrimSpace(job.Target.Query); q != "" {
		return fmt.Sprintf("%q", q)
	}
	refs := job.Target.AllRefs()
	switch len(refs) {
	case 0:
		return "-"
	case 1:
		return refs[0]
	default:
		return fmt.Sprintf("%s (+%d more)", refs[0], len(refs)-1)
	}
}

func jobDetail(job *jobs.Job) string {
	switch {
	case job.Error != nil:
		return fmt.Sprintf("%s: %s", job.Error.Kind, job.Error.Message)
	case job.State == jobs.StateCancelled:
		return "cancelled at " + job.CancelPoint
	case job.Result != nil:
		return resultSummary(job.Result)
	default:
		return strings.TrimSpace(job.Progress.Message)
	}
}

func resultSummary(res *jobs.Result) string {
	switch {
	case len(res.Handoffs) > 0:
		return "saved via " + res.Handoffs[len(res.Handoffs)-1].Method
	case res.Summary != nil:
		return fmt.Sprintf("%d/%d valid", res.Summary.Valid, res.Summary.Total)
	case len(res.Candidates) > 0:
		return fmt.Sprintf("%d candidates", len(res.Candidates))
	case res.Bytes > 0:
		return fmt.Sprintf("%d items, %s", res.Count, humanize.IBytes(uint64(res.Bytes)))
	default:
		return fmt.Sprintf("%d items", res.Count)
	}
}

func attemptsSummary(job *jobs.Job) string {
	if len(job.Attempts) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(job.Attempts))
	for _, a := range job.Attempts {
		part := a.Backend + ":" + string(a.Outcome)
		if a.ErrorKind != "" {
			part += "(" + string(a.ErrorKind) + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " -> ")
}

func jobRows(list []*jobs.Job, now time.Time) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		backendName := job.Backend
		if backendName == "" {
			backendName = "-"
		}
		rows = append(rows, []string{
			job.ID,
			string(job.Kind),
			string(job.State),
			backendName,
			jobTarget(job),
			formatProgress(job),
			relativeTime(job.UpdatedAt, now),
		})
	}
	return rows
}

var jobColumns = []column{
	{header: "ID", maxWidth: 36},
	{header: "Kind"},
	{header: "State"},
	{header: "Backend"},
	{header: "Target", maxWidth: 48},
	{header: "Progress", align: alignRight},
	{header: "Updated"},
}
