package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/render"
)

// Version is the canonical project version.
const Version = "0.1.0"

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
}

// Table implements render.TableWriter.
func (r VersionResponse) Table(w io.Writer, heading func(string) string) error {
	_, err := fmt.Fprintf(w, "%s\t%s (commit: %s)\n", heading("gleaner"), r.Version, r.Commit)
	return err
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(VersionResponse{Version: Version, Commit: commit})
	}
}
