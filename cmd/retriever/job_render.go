package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"retriever/internal/jobs"
)

func printJob(out io.Writer, job *jobs.Job, now time.Time, colorize bool) {
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-10s %s\n", label+":", value)
	}
	field("Job", job.ID)
	field("Kind", titleCase(string(job.Kind)))
	state := titleCase(string(job.State))
	if colorize {
		state = kindStyles[stateKind(job.State)].Render(state)
	}
	field("State", state)
	field("Backend", job.Backend)
	field("Target", jobTarget(job))
	field("Progress", formatProgress(job))
	if msg := strings.TrimSpace(job.Progress.Message); msg != "" && !job.State.IsTerminal() {
		field("Status", msg)
	}
	field("Attempts", attemptsSummary(job))
	field("Created", relativeTime(job.CreatedAt, now))
	field("Updated", relativeTime(job.UpdatedAt, now))
	if job.State == jobs.StateCancelled {
		field("Cancelled", "at "+job.CancelPoint)
	}
	if job.Error != nil {
		field("Error", fmt.Sprintf("%s: %s", job.Error.Kind, job.Error.Message))
		field("Hint", job.Error.Hint)
	}
	if job.Result != nil {
		printResult(out, job.Result)
	}
}

func printResult(out io.Writer, res *jobs.Result) {
	for _, path := range res.Paths {
		fmt.Fprintf(out, "%-10s %s\n", "Path:", path)
	}
	if len(res.Candidates) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderCandidates(res.Candidates))
	}
	if len(res.Validations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderValidations(res.Validations))
	}
	if res.Summary != nil {
		fmt.Fprintf(out, "%-10s %s\n", "Summary:", validationSummaryLine(*res.Summary))
	}
	for _, h := range res.Handoffs {
		line := h.Method
		if h.URL != "" {
			line += " " + h.URL
		}
		for _, tried := range h.Tried {
			if tried.Error != "" {
				line += fmt.Sprintf(" (%s failed: %s)", tried.Method, tried.Error)
			}
		}
		fmt.Fprintf(out, "%-10s %s\n", "Handoff:", line)
	}
}

func renderCandidates(candidates []jobs.Candidate) string {
	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.ID, c.Title, c.Source, c.URL})
	}
	return renderTable([]column{
		{header: "#", align: alignRight},
		{header: "ID", maxWidth: 24},
		{header: "Title", maxWidth: 48},
		{header: "Source"},
		{header: "URL", maxWidth: 60},
	}, rows)
}

func renderValidations(results []jobs.ValidationResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		detail := ""
		if msg, ok := r.Detail["message"].(string); ok {
			detail = msg
		}
		rows = append(rows, []string{r.CandidateID, string(r.Status), detail})
	}
	return renderTable([]column{
		{header: "Candidate", maxWidth: 48},
		{header: "Status"},
		{header: "Detail", maxWidth: 60},
	}, rows)
}

func validationSummaryLine(s jobs.ValidationSummary) string {
	line := fmt.Sprintf("%d of %d valid", s.Valid, s.Total)
	if s.NeedsBroaderSearch {
		line += "; broaden the search"
	}
	return line
}
