// Package main provides the gleaner CLI entrypoint.
//
// gleaner mirrors metadata from OAI-PMH 2.0 repositories. The harvest
// command is the only one that mutates state; identify, sets, status and
// version are read-only.
//
// Usage:
//
//	gleaner <command> [options]
//
// Exit codes for harvest:
//   - 0: success
//   - 1: transport failure (retryable, checkpoint preserved)
//   - 2: protocol error (checkpoint preserved)
//   - 3: resumption token expired (checkpoint cleared, restart)
//   - 4: corrupt checkpoint (cleared, restart)
//   - 5: record writer failure (checkpoint preserved)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/cmd"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "gleaner",
		Usage:          "OAI-PMH metadata harvester",
		Version:        fmt.Sprintf("%s (commit: %s)", cmd.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.HarvestCommand(),
			cmd.IdentifyCommand(),
			cmd.SetsCommand(),
			cmd.StatusCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled cli.ExitCoder errors; this branch
		// covers unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit(), so the harvest
// error taxonomy reaches schedulers intact.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
