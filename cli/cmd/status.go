package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/render"
	"github.com/loess-io/gleaner/state"
)

// StatusResponse describes the persisted harvest state for a target.
type StatusResponse struct {
	LastHarvest string          `json:"lastHarvest,omitempty" yaml:"lastHarvest,omitempty"`
	InProgress  bool            `json:"inProgress" yaml:"inProgress"`
	Corrupt     bool            `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
	Checkpoint  *CheckpointInfo `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// CheckpointInfo is the decoded four-field checkpoint.
type CheckpointInfo struct {
	Set   string `json:"set,omitempty" yaml:"set,omitempty"`
	Token string `json:"token" yaml:"token"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	Until string `json:"until,omitempty" yaml:"until,omitempty"`
}

// Table implements render.TableWriter.
func (r StatusResponse) Table(w io.Writer, heading func(string) string) error {
	last := r.LastHarvest
	if last == "" {
		last = "(never)"
	}
	if _, err := fmt.Fprintf(w, "%s\t%s\n", heading("Last harvest"), last); err != nil {
		return err
	}
	switch {
	case r.Corrupt:
		_, err := fmt.Fprintf(w, "%s\t%s\n", heading("Checkpoint"), "corrupt: clear "+state.StateFileName+" and restart")
		return err
	case r.InProgress:
		if _, err := fmt.Fprintf(w, "%s\t%s\n", heading("In progress"), "yes (interrupted or running)"); err != nil {
			return err
		}
		cp := r.Checkpoint
		_, err := fmt.Fprintf(w, "%s\tset=%q token=%q from=%q until=%q\n", heading("Checkpoint"), cp.Set, cp.Token, cp.From, cp.Until)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s\t%s\n", heading("In progress"), "no")
		return err
	}
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	flags := append(TargetFlags(), ReadOnlyFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "state-backend",
			Usage: "State backend: file or redis",
		},
		&cli.StringFlag{
			Name:  "state-dir",
			Usage: "State directory for the file backend (default ~/.gleaner)",
		},
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "Redis URL for the redis state backend",
		},
	)
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the last-harvest marker and any live checkpoint",
		Flags:  flags,
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	if v := c.String("state-backend"); v != "" {
		cfg.State.Backend = v
	}
	if v := c.String("state-dir"); v != "" {
		cfg.State.Dir = v
	}
	if v := c.String("redis-url"); v != "" {
		cfg.State.RedisURL = v
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	manager, err := newStateManager(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	resp := StatusResponse{}
	resp.LastHarvest, err = manager.LoadDate(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	fields, err := manager.LoadState(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	switch {
	case fields == nil:
	case len(fields) != state.CheckpointFields:
		resp.InProgress = true
		resp.Corrupt = true
	default:
		resp.InProgress = true
		resp.Checkpoint = &CheckpointInfo{
			Set:   fields[0],
			Token: fields[1],
			From:  fields[2],
			Until: fields[3],
		}
	}

	return r.Render(resp)
}
