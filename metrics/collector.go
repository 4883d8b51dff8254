// Package metrics provides per-run metrics collection for harvests.
//
// The Collector accumulates counters during a single harvest run. It is a
// leaf package with no internal dependencies. All increment methods are
// nil-receiver safe so callers never have to guard instrumentation.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of a run's counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Protocol traffic
	RequestsIssued int64
	ProtocolErrors int64

	// Records
	RecordsWritten int64
	BatchesWritten int64

	// State
	CheckpointsSaved int64

	// Sets
	SetsHarvested int64
	SetsSkipped   int64

	// Dimensions (informational, set at construction)
	Endpoint string
	Prefix   string
}

// Collector accumulates metrics during a single harvest run.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	requestsIssued   int64
	protocolErrors   int64
	recordsWritten   int64
	batchesWritten   int64
	checkpointsSaved int64
	setsHarvested    int64
	setsSkipped      int64

	endpoint string
	prefix   string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(endpoint, prefix string) *Collector {
	return &Collector{endpoint: endpoint, prefix: prefix}
}

// IncRequestIssued records one protocol request.
func (c *Collector) IncRequestIssued() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsIssued++
	c.mu.Unlock()
}

// IncProtocolError records a server-side <error> response.
func (c *Collector) IncProtocolError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolErrors++
	c.mu.Unlock()
}

// AddRecordsWritten records one writer batch of n records.
func (c *Collector) AddRecordsWritten(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsWritten += int64(n)
	c.batchesWritten++
	c.mu.Unlock()
}

// IncCheckpointSaved records a persisted checkpoint.
func (c *Collector) IncCheckpointSaved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.checkpointsSaved++
	c.mu.Unlock()
}

// IncSetHarvested records a fully harvested set.
func (c *Collector) IncSetHarvested() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.setsHarvested++
	c.mu.Unlock()
}

// IncSetSkipped records a set fast-forwarded during resume.
func (c *Collector) IncSetSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.setsSkipped++
	c.mu.Unlock()
}

// Snapshot returns an immutable view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		RequestsIssued:   c.requestsIssued,
		ProtocolErrors:   c.protocolErrors,
		RecordsWritten:   c.recordsWritten,
		BatchesWritten:   c.batchesWritten,
		CheckpointsSaved: c.checkpointsSaved,
		SetsHarvested:    c.setsHarvested,
		SetsSkipped:      c.setsSkipped,
		Endpoint:         c.endpoint,
		Prefix:           c.prefix,
	}
}
