// Package state persists harvest progress: the mid-harvest resume
// checkpoint and the last-successful-harvest marker.
//
// A checkpoint is exactly four field-separated values, order
// (setSpec, token, startDate, endDate), with absent optionals serialized
// as the empty string. The shape is the whole contract; the content is
// opaque to every backend.
package state

import "context"

// Artifact names, fixed for operator compatibility. Error messages
// surfaced to users reference StateFileName so filesystem artifacts can be
// correlated.
const (
	StateFileName = "last_state.txt"
	DateFileName  = "last_harvest.txt"
)

// CheckpointFields is the number of slots in a well-formed checkpoint.
const CheckpointFields = 4

// Manager durably stores a harvest's checkpoint and last-harvest marker.
//
// SaveState must be atomic with respect to process crash: after a crash,
// LoadState returns either the previous checkpoint or the new one, never a
// partial write.
type Manager interface {
	// LoadState returns the persisted checkpoint fields, or nil if none.
	// The caller validates the field count; backends return whatever shape
	// was stored.
	LoadState(ctx context.Context) ([]string, error)

	// SaveState atomically writes a four-field checkpoint.
	SaveState(ctx context.Context, set, token, start, end string) error

	// ClearState removes any checkpoint. Clearing an absent checkpoint is
	// not an error.
	ClearState(ctx context.Context) error

	// LoadDate reads the last-harvest marker, or "" if none.
	LoadDate(ctx context.Context) (string, error)

	// SaveDate writes the last-harvest marker.
	SaveDate(ctx context.Context, date string) error
}
