// Package sink persists harvested records.
//
// A Sink receives the ordered <record> children of one ListRecords
// response at a time and reports the most recent record header datestamp
// observed so far across all batches. The driver treats the call as
// opaque; storage layout is the sink's business.
//
// Abort safety: the driver checkpoints before issuing the request that
// produced a batch, so a crash mid-write replays the same batch on resume.
// Sinks must therefore be idempotent per batch (re-writing the same
// records must not corrupt storage).
package sink

import (
	"context"

	"github.com/loess-io/gleaner/oai"
)

// Sink persists record batches.
type Sink interface {
	// Write persists one response's records, in order. set is the setSpec
	// the batch was harvested under ("" for an unfiltered harvest).
	// Returns the latest record header datestamp observed so far across
	// all batches, or "" if unavailable.
	Write(ctx context.Context, set string, records []oai.Record) (string, error)

	// Close flushes and releases any underlying storage.
	Close() error
}

// latestTracker keeps the maximum header datestamp seen. OAI datestamps
// are ISO 8601 in UTC, so lexicographic comparison orders them correctly
// for either granularity.
type latestTracker struct {
	latest string
}

func (t *latestTracker) observe(records []oai.Record) {
	for _, r := range records {
		if d := r.Header.Datestamp; d > t.latest {
			t.latest = d
		}
	}
}
