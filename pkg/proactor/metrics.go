package proactor

import "time"

// Metrics receives dispatcher lifecycle events. A nil Metrics disables
// collection. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordRegistered()
	// RecordStartFailure counts a dispatch rolled back because no worker
	// could be started. reason is "exhausted", "closed" or "error".
	RecordStartFailure(reason string)
	RecordClaimed(wait time.Duration)
	// RecordOrphan counts workers that found no registry entry.
	RecordOrphan()
	RecordCallback(duration time.Duration, panicked bool)
	SetActiveWorkers(n int64)
	SetPending(n int)
}
