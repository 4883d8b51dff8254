package harvest

import (
	"context"
	"fmt"

	"github.com/loess-io/gleaner/comm"
	"github.com/loess-io/gleaner/log"
	"github.com/loess-io/gleaner/metrics"
	"github.com/loess-io/gleaner/oai"
	"github.com/loess-io/gleaner/sink"
	"github.com/loess-io/gleaner/state"
)

// Config configures a single harvest run.
type Config struct {
	// Prefix is the metadata prefix (default oai_dc).
	Prefix string
	// Sets is the ordered list of setSpecs to harvest. Empty harvests the
	// whole repository.
	Sets []string
	// From is the optional start datestamp. When empty, the persisted
	// last-harvest marker is used instead.
	From string
	// Until is the optional end datestamp, passed through verbatim.
	Until string
	// Granularity is the date granularity policy: GranularityAuto (the
	// default) defers to the server's Identify declaration; an explicit
	// token is used as-is.
	Granularity string
	// SkipIdentify suppresses the Identify call when Until is absent; with
	// GranularityAuto, Identify is still called to learn the granularity.
	// Either way the run then has no end boundary and the last-harvest
	// marker is not advanced.
	SkipIdentify bool
	// DisableLongRun skips the long-lived-operation request made to the
	// host at startup.
	DisableLongRun bool

	// Communicator issues protocol requests (required).
	Communicator comm.Communicator
	// Writer persists record batches (required).
	Writer sink.Sink
	// State stores the checkpoint and last-harvest marker (required).
	State state.Manager
	// Logger receives run progress. Nil means silent.
	Logger *log.Logger
	// Collector accumulates run metrics. Nil-safe.
	Collector *metrics.Collector
}

// Harvester drives one harvest run against one repository: Prepare
// (resolve the date window and any checkpoint), Harvest (token-chained
// ListRecords per set), Finalize (advance the marker, clear the
// checkpoint). A Harvester is single-use and not safe for concurrent use;
// the remote server dictates pacing through resumption tokens.
type Harvester struct {
	cfg    Config
	logger *log.Logger

	from        string
	until       string
	granularity string
	sets        []string

	resumeSet   string
	resumeToken string
	resumeLive  bool

	// checkpointed is true once a checkpoint exists for this run, either
	// resumed or saved. It decides whether badResumptionToken means an
	// expired checkpoint.
	checkpointed bool
	lastToken    string
	latest       string
}

// NewHarvester validates the configuration and creates a run.
func NewHarvester(cfg Config) (*Harvester, error) {
	if cfg.Communicator == nil {
		return nil, fmt.Errorf("harvest: a communicator is required")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("harvest: a record writer is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("harvest: a state manager is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = oai.DefaultPrefix
	}
	switch cfg.Granularity {
	case "":
		cfg.Granularity = oai.GranularityAuto
	case oai.GranularityAuto, oai.GranularityDay, oai.GranularitySecond:
	default:
		return nil, fmt.Errorf("harvest: unknown granularity %q", cfg.Granularity)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Harvester{cfg: cfg, logger: logger}, nil
}

// Launch runs the harvest to completion. On success no checkpoint remains
// and the last-harvest marker equals the end boundary of this run. On
// failure the returned error is one of the kinds in this package (a
// canceled context and state-manager failures are returned unwrapped),
// with the checkpoint left in a state that makes a retry semantically
// sound.
func (h *Harvester) Launch(ctx context.Context) error {
	h.requestLongRun()
	if err := h.prepare(ctx); err != nil {
		return err
	}
	for _, set := range h.sets {
		if err := h.harvestSet(ctx, set); err != nil {
			return err
		}
	}
	return h.finalize(ctx)
}

// requestLongRun asks the host for long-lived operation. Go hosts impose
// no process-wide execution time cap, so this is a no-op beyond a debug
// line.
func (h *Harvester) requestLongRun() {
	if h.cfg.DisableLongRun {
		return
	}
	h.logger.Debug("long-lived operation requested", nil)
}

// prepare resolves the effective date window, granularity and set list,
// then applies any persisted checkpoint.
func (h *Harvester) prepare(ctx context.Context) error {
	h.from = h.cfg.From
	if h.from == "" {
		marker, err := h.cfg.State.LoadDate(ctx)
		if err != nil {
			return err
		}
		h.from = marker
	}

	h.granularity = h.cfg.Granularity
	h.until = h.cfg.Until

	needIdentify := h.granularity == oai.GranularityAuto ||
		(h.until == "" && !h.cfg.SkipIdentify)
	if needIdentify {
		env, err := h.request(ctx, oai.VerbIdentify, nil)
		if err != nil {
			return err
		}
		if env.HasError() {
			return h.protocolFailure(ctx, env)
		}
		serverGranularity := oai.NormalizeGranularity(env.Identify.Granularity)
		if h.granularity == oai.GranularityAuto {
			h.granularity = serverGranularity
		}
		if h.until == "" && !h.cfg.SkipIdentify {
			// The server's responseDate is the canonical end boundary:
			// advancing the marker to it later keeps the marker monotone
			// against the server's clock, not ours.
			h.until = oai.TruncateToGranularity(env.ResponseDate, h.granularity)
		}
		h.logger.Info("repository identified", map[string]any{
			"granularity": serverGranularity,
			"until":       h.until,
		})
	} else if h.granularity == oai.GranularityAuto {
		h.granularity = oai.GranularitySecond
	}

	h.sets = h.cfg.Sets
	if len(h.sets) == 0 {
		h.sets = []string{""}
	}

	fields, err := h.cfg.State.LoadState(ctx)
	if err != nil {
		return err
	}
	if fields == nil {
		return nil
	}
	h.logger.Info("resuming interrupted harvest", map[string]any{
		"checkpoint": fields,
	})
	if len(fields) != state.CheckpointFields {
		if err := h.cfg.State.ClearState(ctx); err != nil {
			h.logger.Warn("could not clear corrupt checkpoint", map[string]any{"error": err.Error()})
		}
		return &CorruptStateError{Fields: len(fields)}
	}
	// Continue with the exact window of the interrupted run. Resume
	// assumes the set configuration is unchanged; a checkpoint naming a
	// set that is no longer configured harvests nothing and finalizes.
	h.resumeSet, h.resumeToken = fields[0], fields[1]
	h.from, h.until = fields[2], fields[3]
	h.resumeLive = h.resumeToken != ""
	h.checkpointed = true
	return nil
}

// harvestSet drives the ListRecords pagination loop for one set.
func (h *Harvester) harvestSet(ctx context.Context, set string) error {
	if h.resumeLive && h.resumeSet != set {
		h.logger.Info("skipping set completed before interruption", map[string]any{"set": set})
		h.cfg.Collector.IncSetSkipped()
		return nil
	}

	var (
		env *oai.Envelope
		err error
	)
	if h.resumeLive {
		// The saved token is the sole parameter; metadataPrefix, from,
		// until and set are forbidden alongside it.
		token := h.resumeToken
		h.resumeLive = false
		h.resumeToken = ""
		h.lastToken = token
		env, err = h.request(ctx, oai.VerbListRecords, map[string]string{
			oai.ParamResumptionToken: token,
		})
	} else {
		params := map[string]string{oai.ParamMetadataPrefix: h.cfg.Prefix}
		if h.from != "" {
			params[oai.ParamFrom] = h.from
		}
		if set != "" {
			params[oai.ParamSet] = set
		}
		if h.until != "" {
			params[oai.ParamUntil] = h.until
		}
		env, err = h.request(ctx, oai.VerbListRecords, params)
	}
	if err != nil {
		return err
	}

	token, err := h.consume(ctx, set, env)
	if err != nil {
		return err
	}

	for token != "" {
		// The checkpoint must reach stable storage before the next
		// request: a crash at any later point resumes from exactly this
		// token.
		if err := h.cfg.State.SaveState(ctx, set, token, h.from, h.until); err != nil {
			return err
		}
		h.checkpointed = true
		h.cfg.Collector.IncCheckpointSaved()

		h.lastToken = token
		env, err = h.request(ctx, oai.VerbListRecords, map[string]string{
			oai.ParamResumptionToken: token,
		})
		if err != nil {
			return err
		}
		token, err = h.consume(ctx, set, env)
		if err != nil {
			return err
		}
	}

	h.cfg.Collector.IncSetHarvested()
	return nil
}

// consume validates one response, streams its records to the writer and
// returns the next resumption token. A zero-record page is legal both at
// the end of a set and mid-stream; the writer is only called when there
// is something to write.
func (h *Harvester) consume(ctx context.Context, set string, env *oai.Envelope) (string, error) {
	if env.HasError() {
		return "", h.protocolFailure(ctx, env)
	}
	records := env.ListRecords.Records
	if len(records) > 0 {
		latest, err := h.cfg.Writer.Write(ctx, set, records)
		if err != nil {
			return "", &WriterError{Err: err}
		}
		h.latest = latest
		h.cfg.Collector.AddRecordsWritten(len(records))
		h.logger.Debug("batch written", map[string]any{
			"set":     set,
			"records": len(records),
			"latest":  latest,
		})
	}
	return env.ListRecords.Token.Value, nil
}

// finalize advances the last-harvest marker to the end boundary captured
// in prepare and removes the checkpoint.
func (h *Harvester) finalize(ctx context.Context) error {
	if h.until != "" {
		if err := h.cfg.State.SaveDate(ctx, h.until); err != nil {
			return err
		}
	}
	if err := h.cfg.State.ClearState(ctx); err != nil {
		return err
	}
	h.logger.Info("harvest complete", map[string]any{
		"until":  h.until,
		"latest": h.latest,
	})
	return nil
}

// request issues one protocol request, wrapping transport failures.
func (h *Harvester) request(ctx context.Context, verb string, params map[string]string) (*oai.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.cfg.Collector.IncRequestIssued()
	env, err := h.cfg.Communicator.Request(ctx, verb, params)
	if err != nil {
		return nil, &TransportError{Verb: verb, Err: err}
	}
	return env, nil
}

// protocolFailure maps a server <error> element onto the taxonomy. A
// badResumptionToken while a checkpoint exists invalidates the saved
// window: the checkpoint is cleared and the caller told to start over.
// Every other code leaves the checkpoint intact.
func (h *Harvester) protocolFailure(ctx context.Context, env *oai.Envelope) error {
	h.cfg.Collector.IncProtocolError()
	if env.Error.Code == oai.CodeBadResumptionToken && h.checkpointed {
		if err := h.cfg.State.ClearState(ctx); err != nil {
			h.logger.Warn("could not clear expired checkpoint", map[string]any{"error": err.Error()})
		}
		return &TokenExpiredError{Token: h.lastToken}
	}
	return &OaiProtocolError{Code: env.Error.Code, Message: env.Error.Message}
}
