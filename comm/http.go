package comm

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/sethgrid/pester"

	"github.com/loess-io/gleaner/iox"
	"github.com/loess-io/gleaner/log"
	"github.com/loess-io/gleaner/oai"
)

// UserAgent identifies the harvester to remote repositories.
const UserAgent = "gleaner/0.1.0 (https://github.com/loess-io/gleaner)"

// Doer lets us use pester, http.DefaultClient or other HTTP client
// implementations interchangeably.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config holds HTTP communicator settings.
type Config struct {
	// Endpoint is the repository base URL (required).
	Endpoint string
	// Username and Password enable HTTP basic auth when non-empty.
	Username string
	Password string
	// Timeout is the per-request timeout (default 5m). Only applied to the
	// default client; a custom Doer brings its own timeout.
	Timeout time.Duration
	// MaxRetries is the transport-level retry budget (default 8). Retrying
	// here is a transport concern; the driver itself never retries.
	MaxRetries int
	// Doer overrides the HTTP client (for testing).
	Doer Doer
	// Logger receives per-request debug lines. Nil means silent.
	Logger *log.Logger
}

// HTTPCommunicator performs OAI-PMH requests over HTTP GET with a
// backoff-retrying client.
type HTTPCommunicator struct {
	config Config
	doer   Doer
	logger *log.Logger
}

// NewHTTPCommunicator creates a communicator for an endpoint. Without a
// custom Doer it uses a pester client with exponential backoff.
func NewHTTPCommunicator(cfg Config) (*HTTPCommunicator, error) {
	if cfg.Endpoint == "" {
		return nil, oai.ErrNoEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 8
	}
	doer := cfg.Doer
	if doer == nil {
		client := pester.New()
		client.Timeout = cfg.Timeout
		client.MaxRetries = cfg.MaxRetries
		client.Backoff = pester.ExponentialBackoff
		doer = client
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &HTTPCommunicator{config: cfg, doer: doer, logger: logger}, nil
}

// Request implements Communicator.
func (c *HTTPCommunicator) Request(ctx context.Context, verb string, params map[string]string) (*oai.Envelope, error) {
	link, err := oai.BuildURL(c.config.Endpoint, verb, params)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("request", map[string]any{"url": link})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", verb, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s request returned HTTP %d", verb, resp.StatusCode)
	}

	var envelope oai.Envelope
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%s response is not well-formed XML: %w", verb, err)
	}
	return &envelope, nil
}

// Verify HTTPCommunicator implements Communicator.
var _ Communicator = (*HTTPCommunicator)(nil)
