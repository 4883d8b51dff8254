package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/config"
)

// DefaultConfigFile is picked up from the working directory when no
// --config flag is given.
const DefaultConfigFile = "gleaner.yaml"

// ReadOnlyFlags are shared by every command that only renders output.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output format: json, table, or yaml (default: table on TTY, json otherwise)",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored table output",
		},
	}
}

// TargetFlags select the remote repository.
func TargetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to gleaner.yaml (default: ./gleaner.yaml if present)",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "Repository base URL",
		},
		&cli.StringFlag{
			Name:  "http-user",
			Usage: "HTTP basic auth user",
		},
		&cli.StringFlag{
			Name:  "http-pass",
			Usage: "HTTP basic auth password",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	}
}

// loadSettings merges the config file (if any) with CLI flags. Flags
// always win.
func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}

	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := c.String("url"); v != "" {
		cfg.URL = v
	}
	if v := c.String("http-user"); v != "" {
		cfg.HTTPUser = v
	}
	if v := c.String("http-pass"); v != "" {
		cfg.HTTPPass = v
	}
	if c.IsSet("timeout") {
		cfg.Timeout = config.Duration{Duration: c.Duration("timeout")}
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("a repository URL is required (--url or config file)")
	}
	return cfg, nil
}
