package sink

import (
	"context"

	"github.com/loess-io/gleaner/oai"
)

// StubBatch is one recorded Write call.
type StubBatch struct {
	Set     string
	Records []oai.Record
}

// StubSink records every batch for testing. The latest datestamp is
// computed from record headers like a real sink would.
type StubSink struct {
	Batches []StubBatch
	Closed  bool

	// WriteErr, when set, is returned by the next Write.
	WriteErr error

	tracker latestTracker
}

// NewStubSink creates an empty stub.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// Write implements Sink by recording the batch.
func (s *StubSink) Write(_ context.Context, set string, records []oai.Record) (string, error) {
	if s.WriteErr != nil {
		return "", s.WriteErr
	}
	s.Batches = append(s.Batches, StubBatch{Set: set, Records: records})
	s.tracker.observe(records)
	return s.tracker.latest, nil
}

// Close implements Sink.
func (s *StubSink) Close() error {
	s.Closed = true
	return nil
}

// Verify StubSink implements Sink.
var _ Sink = (*StubSink)(nil)
