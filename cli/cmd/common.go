package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/loess-io/gleaner/cli/config"
	"github.com/loess-io/gleaner/comm"
	"github.com/loess-io/gleaner/harvest"
	"github.com/loess-io/gleaner/log"
	"github.com/loess-io/gleaner/state"
)

// Exit codes, one per error kind so schedulers can branch without parsing
// messages.
const (
	exitSuccess      = 0
	exitTransport    = 1
	exitProtocol     = 2
	exitTokenExpired = 3
	exitCorruptState = 4
	exitWriter       = 5
)

// exitCodeFor maps the harvest error taxonomy onto exit codes.
func exitCodeFor(err error) int {
	var (
		transport *harvest.TransportError
		protocol  *harvest.OaiProtocolError
		expired   *harvest.TokenExpiredError
		corrupt   *harvest.CorruptStateError
		writer    *harvest.WriterError
	)
	switch {
	case errors.As(err, &expired):
		return exitTokenExpired
	case errors.As(err, &corrupt):
		return exitCorruptState
	case errors.As(err, &protocol):
		return exitProtocol
	case errors.As(err, &writer):
		return exitWriter
	case errors.As(err, &transport):
		return exitTransport
	default:
		return exitTransport
	}
}

// newLogger builds the run logger from merged settings.
func newLogger(cfg *config.Config) *log.Logger {
	return log.NewLogger(cfg.URL, cfg.Verbose)
}

// newCommunicator builds the HTTP communicator from merged settings.
func newCommunicator(cfg *config.Config, logger *log.Logger) (comm.Communicator, error) {
	return comm.NewHTTPCommunicator(comm.Config{
		Endpoint: cfg.URL,
		Username: cfg.HTTPUser,
		Password: cfg.HTTPPass,
		Timeout:  cfg.Timeout.Duration,
		Logger:   logger,
	})
}

// newStateManager builds the configured state backend.
func newStateManager(cfg *config.Config) (state.Manager, error) {
	switch cfg.State.Backend {
	case "", "file":
		return state.NewFileManager(cfg.State.Dir)
	case "redis":
		return state.NewRedisManager(cfg.State.RedisURL, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown state backend %q (must be file or redis)", cfg.State.Backend)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM. Split out
// so actions share one shape.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return notifyContext(c.Context)
}
