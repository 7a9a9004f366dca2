// Package deps locates the command-line tools the download backends shell
// out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"retriever/internal/config"
)

// Tool is an external command owned by one backend.
type Tool struct {
	Backend string `json:"backend"`
	Command string `json:"command"`
	Purpose string `json:"purpose,omitempty"`
}

// Status is the outcome of locating a Tool on PATH.
type Status struct {
	Tool
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Locate resolves tool.Command. Commands with a path separator are checked
// as given.
func Locate(tool Tool) Status {
	tool.Command = strings.TrimSpace(tool.Command)
	st := Status{Tool: tool}
	if tool.Command == "" {
		st.Detail = tool.Backend + ": command not configured"
		return st
	}
	path, err := exec.LookPath(tool.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("%s: %q not found on PATH", tool.Backend, tool.Command)
		return st
	}
	st.Path = path
	st.Available = true
	return st
}

// LocateAll resolves every tool in order.
func LocateAll(tools []Tool) []Status {
	out := make([]Status, len(tools))
	for i, tool := range tools {
		out[i] = Locate(tool)
	}
	return out
}

// ForConfig lists the tools required by the enabled download backends.
func ForConfig(cfg *config.Config) []Tool {
	if cfg == nil {
		return nil
	}
	var tools []Tool
	if cfg.Qobuz.Enabled {
		tools = append(tools, Tool{Backend: "qobuz", Command: cfg.Qobuz.Binary, Purpose: "qobuz downloads"})
	}
	if cfg.Tidal.Enabled {
		tools = append(tools, Tool{Backend: "tidal", Command: cfg.Tidal.Binary, Purpose: "tidal downloads"})
	}
	return tools
}
