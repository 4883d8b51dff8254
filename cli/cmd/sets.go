package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/render"
	"github.com/loess-io/gleaner/oai"
)

// SetsResponse lists the repository's sets.
type SetsResponse struct {
	Sets []SetEntry `json:"sets" yaml:"sets"`
}

// SetEntry is one set of a SetsResponse.
type SetEntry struct {
	Spec string `json:"spec" yaml:"spec"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Table implements render.TableWriter.
func (r SetsResponse) Table(w io.Writer, heading func(string) string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\n", heading("SPEC"), heading("NAME")); err != nil {
		return err
	}
	for _, s := range r.Sets {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", s.Spec, s.Name); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// SetsCommand returns the sets command, the set-name enrichment pathway.
func SetsCommand() *cli.Command {
	return &cli.Command{
		Name:   "sets",
		Usage:  "List the repository's sets",
		Flags:  append(TargetFlags(), ReadOnlyFlags()...),
		Action: setsAction,
	}
}

func setsAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}

	logger := newLogger(cfg)
	communicator, err := newCommunicator(cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	// ListSets paginates like ListRecords: chase tokens until the server
	// stops issuing them.
	var resp SetsResponse
	params := map[string]string{}
	for {
		env, err := communicator.Request(ctx, oai.VerbListSets, params)
		if err != nil {
			return cli.Exit(err.Error(), exitTransport)
		}
		if env.HasError() {
			return cli.Exit(fmt.Sprintf("server reported %s: %s", env.Error.Code, env.Error.Message), exitProtocol)
		}
		for _, s := range env.ListSets.Sets {
			resp.Sets = append(resp.Sets, SetEntry{Spec: s.Spec, Name: s.Name})
		}
		token := env.ListSets.Token.Value
		if token == "" {
			break
		}
		params = map[string]string{oai.ParamResumptionToken: token}
	}

	return r.Render(resp)
}
