package state

import "context"

// StubCheckpoint is a recorded SaveState call for testing.
type StubCheckpoint struct {
	Set, Token, Start, End string
}

// StubManager is an in-memory Manager that records every mutation.
// Seed Fields to simulate a pre-existing checkpoint of any shape.
type StubManager struct {
	Fields []string
	Date   string

	Saved      []StubCheckpoint
	SavedDates []string
	Cleared    int

	LoadStateErr error
	SaveStateErr error
}

// NewStubManager creates an empty stub.
func NewStubManager() *StubManager {
	return &StubManager{}
}

// LoadState implements Manager.
func (m *StubManager) LoadState(_ context.Context) ([]string, error) {
	if m.LoadStateErr != nil {
		return nil, m.LoadStateErr
	}
	return m.Fields, nil
}

// SaveState implements Manager.
func (m *StubManager) SaveState(_ context.Context, set, token, start, end string) error {
	if m.SaveStateErr != nil {
		return m.SaveStateErr
	}
	m.Fields = []string{set, token, start, end}
	m.Saved = append(m.Saved, StubCheckpoint{Set: set, Token: token, Start: start, End: end})
	return nil
}

// ClearState implements Manager.
func (m *StubManager) ClearState(_ context.Context) error {
	m.Fields = nil
	m.Cleared++
	return nil
}

// LoadDate implements Manager.
func (m *StubManager) LoadDate(_ context.Context) (string, error) {
	return m.Date, nil
}

// SaveDate implements Manager.
func (m *StubManager) SaveDate(_ context.Context, date string) error {
	m.Date = date
	m.SavedDates = append(m.SavedDates, date)
	return nil
}

// Verify StubManager implements Manager.
var _ Manager = (*StubManager)(nil)
