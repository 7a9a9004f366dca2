package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"retriever/internal/backend"
	"retriever/internal/jobs"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	kindStyles  = map[statusKind]lipgloss.Style{
		statusInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		statusOK:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		statusWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		statusError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		return kindStyles[kind].Render(base)
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func healthKind(status backend.HealthStatus) statusKind {
	switch status {
	case backend.HealthAvailable:
		return statusOK
	case backend.HealthDegraded:
		return statusWarn
	default:
		return statusError
	}
}

func stateKind(state jobs.State) statusKind {
	switch state {
	case jobs.StateCompleted:
		return statusOK
	case jobs.StateFailed:
		return statusError
	case jobs.StateCancelled:
		return statusWarn
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{headerStyle.Render(line), headerStyle.Render(rule)}
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
