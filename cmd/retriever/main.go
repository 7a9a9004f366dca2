package main

import (
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command tree and maps the outcome onto an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root, ctx := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	reportError(stderr, err, ctx.jsonOutput)
	return exitCode(err)
}
