package watch

import "time"

// Debouncer tracks the watched value across polls and reports when a change
// has settled, meaning the value stayed constant for the full stability
// period after its last change.
//
// The type is a pure state machine: time enters only through Sample.ReadAt,
// so callers control the clock. It is not safe for concurrent use; a single
// polling loop owns it.
type Debouncer struct {
	// stabilityPeriod is how long the value must stay unchanged after a
	// change before an event fires.
	stabilityPeriod time.Duration

	// hasLast reports whether a sample has been observed yet.
	hasLast bool
	// lastValue is the most recently observed value.
	lastValue int64
	// lastChangeAt is when lastValue was first observed.
	lastChangeAt time.Time
	// armed is true while a detected change is waiting out the quiet period.
	armed bool
}

// NewDebouncer returns a debouncer using the given stability period.
func NewDebouncer(stabilityPeriod time.Duration) *Debouncer {
	return &Debouncer{
		stabilityPeriod: stabilityPeriod,
	}
}

// Observe feeds one sample into the state machine and returns a
// StableChangeEvent when the sample confirms that a change has settled,
// or nil otherwise.
//
// The first sample only establishes the baseline and never produces an
// event. A change restarts the quiet period, so a cluster of changes
// spaced closer than the stability period yields exactly one event, timed
// from the last change in the cluster.
func (d *Debouncer) Observe(sample Sample) *StableChangeEvent {
	if !d.hasLast {
		d.hasLast = true
		d.lastValue = sample.Value
		d.lastChangeAt = sample.ReadAt
		d.armed = false

		return nil
	}

	if sample.Value != d.lastValue {
		d.lastValue = sample.Value
		d.lastChangeAt = sample.ReadAt
		d.armed = true

		return nil
	}

	if !d.armed {
		return nil
	}

	if sample.ReadAt.Sub(d.lastChangeAt) < d.stabilityPeriod {
		return nil
	}

	d.armed = false

	return &StableChangeEvent{
		TriggeringValue: sample.Value,
		DetectedAt:      sample.ReadAt,
	}
}

// Armed reports whether a change is currently waiting out the quiet period.
func (d *Debouncer) Armed() bool {
	return d.armed
}

// Checkpoint is a snapshot of the debouncer state for persistence across
// restarts.
type Checkpoint struct {
	// LastValue is the most recently observed value.
	LastValue int64
	// LastChangeAt is when LastValue was first observed.
	LastChangeAt time.Time
	// Armed is true when a change was still waiting out the quiet period.
	Armed bool
}

// Checkpoint returns the current state snapshot. The second return value is
// false until the first sample has been observed, in which case there is
// nothing worth persisting.
func (d *Debouncer) Checkpoint() (Checkpoint, bool) {
	if !d.hasLast {
		return Checkpoint{}, false
	}

	return Checkpoint{
		LastValue:    d.lastValue,
		LastChangeAt: d.lastChangeAt,
		Armed:        d.armed,
	}, true
}

// Restore loads a previously persisted snapshot, so a change that was
// waiting out its quiet period when the process stopped still triggers
// exactly once after restart.
func (d *Debouncer) Restore(checkpoint Checkpoint) {
	d.hasLast = true
	d.lastValue = checkpoint.LastValue
	d.lastChangeAt = checkpoint.LastChangeAt
	d.armed = checkpoint.Armed
}
