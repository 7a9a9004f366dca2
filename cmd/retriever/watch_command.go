package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"retriever/internal/api"
	"retriever/internal/feed"
	"retriever/internal/jobs"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		interval time.Duration
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of jobs and backend health",
		Long: "Polls the daemon on a fixed interval and renders jobs and backend health.\n" +
			"When stdout is not a terminal a single snapshot is printed instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			fetch := func(showAll bool) watchSnapshot {
				return fetchSnapshot(cmd.Context(), client, showAll)
			}
			out := cmd.OutOrStdout()
			if ctx.jsonOutput || !shouldColorize(out) {
				snap := fetch(all)
				if snap.err != nil {
					return snap.err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, watchOutputFrom(snap))
				}
				fmt.Fprint(out, renderSnapshot(snap, all, false, time.Now()))
				return nil
			}
			model := newWatchModel(fetch, interval, all)
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()), tea.WithOutput(out))
			_, err = program.Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	cmd.Flags().BoolVar(&all, "all", false, "Include finished jobs")
	return cmd
}

type watchSnapshot struct {
	overview *feed.Overview
	jobs     []*jobs.Job
	err      error
	at       time.Time
}

type watchOutput struct {
	Overview *feed.Overview `json:"overview"`
	Jobs     []*jobs.Job    `json:"jobs"`
}

func watchOutputFrom(s watchSnapshot) watchOutput {
	return watchOutput{Overview: s.overview, Jobs: s.jobs}
}

func fetchSnapshot(ctx context.Context, client *api.Client, showAll bool) watchSnapshot {
	snap := watchSnapshot{at: time.Now()}
	overview, err := client.Overview(ctx)
	if err != nil {
		snap.err = err
		return snap
	}
	scope := feed.ScopeActive
	if showAll {
		scope = feed.ScopeAll
	}
	list, err := client.Jobs(ctx, api.JobQuery{Filter: scope})
	if err != nil {
		snap.err = err
		return snap
	}
	snap.overview = overview
	snap.jobs = list
	return snap
}

type snapshotMsg watchSnapshot

type tickMsg time.Time

type watchModel struct {
	fetch    func(showAll bool) watchSnapshot
	interval time.Duration
	showAll  bool
	snap     watchSnapshot
}

func newWatchModel(fetch func(bool) watchSnapshot, interval time.Duration, showAll bool) watchModel {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return watchModel{fetch: fetch, interval: interval, showAll: showAll}
}

func (m watchModel) fetchCmd() tea.Cmd {
	fetch, showAll := m.fetch, m.showAll
	return func() tea.Msg { return snapshotMsg(fetch(showAll)) }
}

func (m watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = watchSnapshot(msg)
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "a":
			m.showAll = !m.showAll
			return m, m.fetchCmd()
		case "r":
			return m, m.fetchCmd()
		}
	}
	return m, nil
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("retriever watch"))
	b.WriteString("\n\n")
	if m.snap.err != nil {
		b.WriteString(watchErrorStyle.Render("error: " + m.snap.err.Error()))
		b.WriteString("\n\n")
	}
	if m.snap.overview != nil || m.snap.jobs != nil {
		b.WriteString(renderSnapshot(m.snap, m.showAll, true, time.Now()))
	} else if m.snap.err == nil {
		b.WriteString(watchMutedStyle.Render("loading..."))
		b.WriteString("\n")
	}
	scope := "active"
	if m.showAll {
		scope = "all"
	}
	b.WriteString("\n")
	b.WriteString(watchMutedStyle.Render(fmt.Sprintf("showing %s jobs, refresh every %s | a: toggle all  r: refresh  q: quit", scope, m.interval)))
	b.WriteString("\n")
	return b.String()
}

// renderSnapshot renders the dashboard body shared by the live view and the
// one-shot fallback.
func renderSnapshot(s watchSnapshot, showAll, colorize bool, now time.Time) string {
	var b strings.Builder
	if s.overview != nil {
		b.WriteString(renderCounts(s.overview, colorize))
		b.WriteString("\n")
		if len(s.overview.Backends) > 0 {
			var lines []string
			for _, be := range s.overview.Backends {
				detail := string(be.Status)
				if be.Detail != "" {
					detail += ": " + be.Detail
				}
				lines = append(lines, renderStatusLine(be.Name, healthKind(be.Status), detail, colorize))
			}
			panel := strings.Join(lines, "\n")
			if colorize {
				panel = watchPanelStyle.Render(panel)
			}
			b.WriteString(panel)
			b.WriteString("\n")
		}
	}
	if len(s.jobs) == 0 {
		if showAll {
			b.WriteString("No jobs\n")
		} else {
			b.WriteString("No active jobs\n")
		}
		return b.String()
	}
	list := append([]*jobs.Job(nil), s.jobs...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	b.WriteString(renderTable(jobColumns, jobRows(list, now)))
	return b.String()
}

func renderCounts(o *feed.Overview, colorize bool) string {
	parts := make([]string, 0, len(jobs.AllStates)+1)
	for _, state := range jobs.AllStates {
		part := fmt.Sprintf("%s %d", state, o.Counts[state])
		if colorize {
			part = kindStyles[stateKind(state)].Render(part)
		}
		parts = append(parts, part)
	}
	parts = append(parts, fmt.Sprintf("total %d", o.Total))
	return strings.Join(parts, "  ")
}
