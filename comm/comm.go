// Package comm issues OAI-PMH protocol requests and returns parsed
// response envelopes.
//
// A Communicator deals only in transport: composing the HTTP request,
// performing it, and decoding the XML body. Transport failures (connection
// refused, non-success status, malformed XML) surface as errors; a
// well-formed response carrying a protocol-level <error> element is NOT an
// error here. Inspecting it is the driver's job.
package comm

import (
	"context"

	"github.com/loess-io/gleaner/oai"
)

// Communicator issues one verb request and returns the parsed response.
type Communicator interface {
	// Request performs a single protocol request. params maps parameter
	// names to string values; empty values are dropped.
	Request(ctx context.Context, verb string, params map[string]string) (*oai.Envelope, error)
}
