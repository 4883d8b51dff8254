package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/render"
	"github.com/loess-io/gleaner/oai"
)

// IdentifyResponse is the rendered Identify block.
type IdentifyResponse struct {
	Name         string `json:"name" yaml:"name"`
	URL          string `json:"url" yaml:"url"`
	Version      string `json:"version" yaml:"version"`
	AdminEmail   string `json:"email,omitempty" yaml:"email,omitempty"`
	Earliest     string `json:"earliest" yaml:"earliest"`
	DeletePolicy string `json:"delete,omitempty" yaml:"delete,omitempty"`
	Granularity  string `json:"granularity" yaml:"granularity"`
	ResponseDate string `json:"responseDate" yaml:"responseDate"`
}

// Table implements render.TableWriter.
func (r IdentifyResponse) Table(w io.Writer, heading func(string) string) error {
	rows := []struct{ k, v string }{
		{"Name", r.Name},
		{"URL", r.URL},
		{"Protocol", r.Version},
		{"Email", r.AdminEmail},
		{"Earliest", r.Earliest},
		{"Deletes", r.DeletePolicy},
		{"Granularity", r.Granularity},
		{"Server time", r.ResponseDate},
	}
	for _, row := range rows {
		if row.v == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", heading(row.k), row.v); err != nil {
			return err
		}
	}
	return nil
}

// IdentifyCommand returns the identify command.
func IdentifyCommand() *cli.Command {
	return &cli.Command{
		Name:   "identify",
		Usage:  "Fetch and show the repository's Identify block",
		Flags:  append(TargetFlags(), ReadOnlyFlags()...),
		Action: identifyAction,
	}
}

func identifyAction(c *cli.Context) error {
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

	env, err := communicator.Request(ctx, oai.VerbIdentify, nil)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	if env.HasError() {
		return cli.Exit(fmt.Sprintf("server reported %s: %s", env.Error.Code, env.Error.Message), exitProtocol)
	}

	return r.Render(IdentifyResponse{
		Name:         env.Identify.Name,
		URL:          env.Identify.BaseURL,
		Version:      env.Identify.Version,
		AdminEmail:   env.Identify.AdminEmail,
		Earliest:     env.Identify.EarliestDatestamp,
		DeletePolicy: env.Identify.DeletePolicy,
		Granularity:  env.Identify.Granularity,
		ResponseDate: env.ResponseDate,
	})
}
