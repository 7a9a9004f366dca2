// Package cmdrun runs external downloader CLIs for the audio adapters.
//
// Each command runs in its own process group so cancellation and the hard
// per-call timeout stop the whole tree, not just the direct child. Output is
// captured in full for classification and optionally streamed line by line.
// Success of folder-producing tools is judged by diffing the destination
// before and after the run.
package cmdrun
