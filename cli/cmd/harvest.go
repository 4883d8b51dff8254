package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/config"
	"github.com/loess-io/gleaner/harvest"
	"github.com/loess-io/gleaner/iox"
	"github.com/loess-io/gleaner/log"
	"github.com/loess-io/gleaner/metrics"
	"github.com/loess-io/gleaner/oai"
	"github.com/loess-io/gleaner/sink"
)

// HarvestCommand returns the harvest command, the only command that
// mutates state.
func HarvestCommand() *cli.Command {
	flags := append(TargetFlags(),
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Metadata prefix",
		},
		&cli.StringSliceFlag{
			Name:  "set",
			Usage: "setSpec to harvest (repeatable, ordered; none harvests all)",
		},
		&cli.StringFlag{
			Name:  "from",
			Usage: "Start datestamp (default: last-harvest marker)",
		},
		&cli.StringFlag{
			Name:  "until",
			Usage: "End datestamp, passed through verbatim",
		},
		&cli.StringFlag{
			Name:  "granularity",
			Usage: "Date granularity: auto, YYYY-MM-DD, or YYYY-MM-DDThh:mm:ssZ",
		},
		&cli.BoolFlag{
			Name:  "skip-identify",
			Usage: "Do not call Identify when until is absent, except to learn an auto granularity (no end boundary, marker not advanced)",
		},
		&cli.StringFlag{
			Name:  "window",
			Usage: "Split an explicit from/until range into sequential runs: monthly or weekly",
		},
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
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Record storage: file or s3",
		},
		&cli.StringFlag{
			Name:  "storage-dir",
			Usage: "Output directory for the file storage backend",
		},
		&cli.BoolFlag{
			Name:  "compress",
			Usage: "Gzip record files (file storage backend)",
		},
		&cli.StringFlag{
			Name:  "s3-path",
			Usage: "S3 location as bucket or bucket/prefix",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "AWS region for the s3 backend (optional, default chain)",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the run summary",
		},
	)
	return &cli.Command{
		Name:   "harvest",
		Usage:  "Harvest records from a repository, resuming any interrupted run",
		Flags:  flags,
		Action: harvestAction,
	}
}

func harvestAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	applyHarvestFlags(c, cfg)

	logger := newLogger(cfg)
	communicator, err := newCommunicator(cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	stateManager, err := newStateManager(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	recordSink, err := newSink(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	defer iox.DiscardClose(recordSink)

	collector := metrics.NewCollector(cfg.URL, cfg.MetadataPrefix)

	ctx, cancel := signalContext(c)
	defer cancel()

	base := harvest.Config{
		Prefix:       cfg.MetadataPrefix,
		Sets:         cfg.Set,
		From:         cfg.From,
		Until:        cfg.Until,
		Granularity:  cfg.DateGranularity,
		SkipIdentify: cfg.SkipIdentify,
		Communicator: communicator,
		Writer:       recordSink,
		State:        stateManager,
		Logger:       logger,
		Collector:    collector,
	}

	if window := c.String("window"); window != "" {
		err = runWindowed(ctx, base, window, logger)
	} else {
		var h *harvest.Harvester
		h, err = harvest.NewHarvester(base)
		if err == nil {
			err = h.Launch(ctx)
		}
	}
	if err != nil {
		return cli.Exit(err.Error(), exitCodeFor(err))
	}

	if err := recordSink.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("closing record storage: %v", err), exitWriter)
	}
	if !c.Bool("quiet") {
		snap := collector.Snapshot()
		logger.Sugar().Infof("harvested %d records in %d batches (%d requests, %d checkpoints)",
			snap.RecordsWritten, snap.BatchesWritten, snap.RequestsIssued, snap.CheckpointsSaved)
	}
	return nil
}

// applyHarvestFlags folds harvest-only flags into the merged config.
func applyHarvestFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("prefix"); v != "" {
		cfg.MetadataPrefix = v
	}
	if v := c.StringSlice("set"); len(v) > 0 {
		cfg.Set = config.StringList(v)
	}
	if v := c.String("from"); v != "" {
		cfg.From = v
	}
	if v := c.String("until"); v != "" {
		cfg.Until = v
	}
	if v := c.String("granularity"); v != "" {
		cfg.DateGranularity = v
	}
	if c.IsSet("skip-identify") {
		cfg.SkipIdentify = c.Bool("skip-identify")
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
	if v := c.String("storage-backend"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := c.String("storage-dir"); v != "" {
		cfg.Storage.Dir = v
	}
	if c.IsSet("compress") {
		cfg.Storage.Compress = c.Bool("compress")
	}
	if v := c.String("s3-path"); v != "" {
		cfg.Storage.Path = v
	}
	if v := c.String("s3-region"); v != "" {
		cfg.Storage.Region = v
	}
	if v := c.String("s3-endpoint"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if c.IsSet("s3-path-style") {
		cfg.Storage.S3PathStyle = c.Bool("s3-path-style")
	}
}

// newSink builds the configured record storage.
func newSink(c *cli.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = "."
		}
		return sink.NewFileSink(sink.FileConfig{
			Dir:      dir,
			Endpoint: cfg.URL,
			Prefix:   cfg.MetadataPrefix,
			Compress: cfg.Storage.Compress,
		})
	case "s3":
		bucket, prefix := sink.ParseS3Path(cfg.Storage.Path)
		return sink.NewS3Sink(c.Context, sink.S3Config{
			Bucket:         bucket,
			Prefix:         prefix,
			Region:         cfg.Storage.Region,
			Endpoint:       cfg.Storage.Endpoint,
			UsePathStyle:   cfg.Storage.S3PathStyle,
			RepoEndpoint:   cfg.URL,
			MetadataPrefix: cfg.MetadataPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q (must be file or s3)", cfg.Storage.Backend)
	}
}

// runWindowed splits an explicit from/until range into calendar-aligned
// runs. Each window is a complete caller-bounded harvest, so the marker
// advances window by window and an interruption resumes inside the
// current window.
func runWindowed(ctx context.Context, base harvest.Config, mode string, logger *log.Logger) error {
	if base.From == "" || base.Until == "" {
		return fmt.Errorf("--window requires explicit --from and --until")
	}
	from, err := parseDay(base.From)
	if err != nil {
		return fmt.Errorf("--window requires a day-formatted from: %w", err)
	}
	until, err := parseDay(base.Until)
	if err != nil {
		return fmt.Errorf("--window requires a day-formatted until: %w", err)
	}

	span := oai.Window{From: from, Until: until}
	var windows []oai.Window
	switch mode {
	case "monthly":
		windows, err = span.Monthly()
	case "weekly":
		windows, err = span.Weekly()
	default:
		return fmt.Errorf("unknown window mode %q (must be monthly or weekly)", mode)
	}
	if err != nil {
		return err
	}

	for _, w := range windows {
		cfg := base
		cfg.From = w.From.Format("2006-01-02")
		cfg.Until = w.Until.Format("2006-01-02")
		logger.Info("harvesting window", map[string]any{
			"from":  cfg.From,
			"until": cfg.Until,
		})
		h, err := harvest.NewHarvester(cfg)
		if err != nil {
			return err
		}
		if err := h.Launch(ctx); err != nil {
			return err
		}
	}
	return nil
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
