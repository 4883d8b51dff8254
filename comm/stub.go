package comm

import (
	"context"
	"errors"

	"github.com/loess-io/gleaner/oai"
)

// StubCall is a recorded request for testing.
type StubCall struct {
	Verb   string
	Params map[string]string
}

// StubStep is one scripted response: either an envelope or a transport
// failure.
type StubStep struct {
	Envelope *oai.Envelope
	Err      error
}

// StubCommunicator replays a script of responses and records every request.
// Use for driver testing without a network.
type StubCommunicator struct {
	Script []StubStep
	Calls  []StubCall

	next int
}

// NewStubCommunicator creates a stub that replays the given steps in order.
func NewStubCommunicator(steps ...StubStep) *StubCommunicator {
	return &StubCommunicator{Script: steps}
}

// Request implements Communicator by recording the call and popping the
// next scripted step.
func (s *StubCommunicator) Request(_ context.Context, verb string, params map[string]string) (*oai.Envelope, error) {
	// Copy so later mutation by the caller cannot rewrite history.
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	s.Calls = append(s.Calls, StubCall{Verb: verb, Params: copied})

	if s.next >= len(s.Script) {
		return nil, errors.New("stub communicator: script exhausted")
	}
	step := s.Script[s.next]
	s.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Envelope, nil
}

// Verify StubCommunicator implements Communicator.
var _ Communicator = (*StubCommunicator)(nil)
