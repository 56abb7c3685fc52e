package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pollSeries feeds values into the debouncer at a fixed interval starting at
// base and returns every emitted event paired with its poll timestamp.
func pollSeries(d *Debouncer, base time.Time, interval time.Duration, values []int64) []*StableChangeEvent {
	var events []*StableChangeEvent

	for i, value := range values {
		sample := Sample{
			Value:  value,
			ReadAt: base.Add(time.Duration(i) * interval),
		}

		if event := d.Observe(sample); event != nil {
			events = append(events, event)
		}
	}

	return events
}

// TestDebouncer_SingleChangeSettles verifies the plain settle cycle: a value
// change followed by quiet polls fires exactly one event once the full
// stability period has elapsed.
func TestDebouncer_SingleChangeSettles(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(6 * time.Second)

	// Polls at t=0,2,...,12; the change lands at t=6.
	events := pollSeries(d, base, 2*time.Second, []int64{5, 5, 5, 7, 7, 7, 7})

	require.Len(t, events, 1)
	require.Equal(t, int64(7), events[0].TriggeringValue)
	require.Equal(t, base.Add(12*time.Second), events[0].DetectedAt)
}

// TestDebouncer_ChangeClusterSettlesOnce verifies that changes spaced closer
// than the stability period restart the quiet window and produce a single
// event carrying the final value.
func TestDebouncer_ChangeClusterSettlesOnce(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(6 * time.Second)

	// Changes at t=2 and t=4; the window restarts at t=4 and closes at t=10.
	events := pollSeries(d, base, 2*time.Second, []int64{5, 6, 7, 7, 7, 7, 7})

	require.Len(t, events, 1)
	require.Equal(t, int64(7), events[0].TriggeringValue)
	require.Equal(t, base.Add(10*time.Second), events[0].DetectedAt)
}

// TestDebouncer_FirstSampleNeverFires verifies that the baseline sample alone
// cannot produce an event, no matter how much time passes afterwards.
func TestDebouncer_FirstSampleNeverFires(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(time.Second)

	require.Nil(t, d.Observe(Sample{Value: 42, ReadAt: base}))
	require.Nil(t, d.Observe(Sample{Value: 42, ReadAt: base.Add(time.Hour)}))
	require.False(t, d.Armed())
}

// TestDebouncer_FiresOncePerCycle verifies the machine disarms after an event
// and stays quiet until the next change arms it again.
func TestDebouncer_FiresOncePerCycle(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(4 * time.Second)

	events := pollSeries(d, base, 2*time.Second, []int64{1, 2, 2, 2, 2, 2, 2})
	require.Len(t, events, 1)
	require.False(t, d.Armed())

	// The next change starts a fresh cycle.
	at := base.Add(14 * time.Second)
	require.Nil(t, d.Observe(Sample{Value: 3, ReadAt: at}))
	require.True(t, d.Armed())

	event := d.Observe(Sample{Value: 3, ReadAt: at.Add(4 * time.Second)})
	require.NotNil(t, event)
	require.Equal(t, int64(3), event.TriggeringValue)
}

// TestDebouncer_ExactBoundaryFires verifies an elapsed time equal to the
// stability period is enough to fire.
func TestDebouncer_ExactBoundaryFires(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(6 * time.Second)

	require.Nil(t, d.Observe(Sample{Value: 1, ReadAt: base}))
	require.Nil(t, d.Observe(Sample{Value: 2, ReadAt: base.Add(2 * time.Second)}))
	require.Nil(t, d.Observe(Sample{Value: 2, ReadAt: base.Add(7 * time.Second)}))

	event := d.Observe(Sample{Value: 2, ReadAt: base.Add(8 * time.Second)})
	require.NotNil(t, event)
	require.Equal(t, base.Add(8*time.Second), event.DetectedAt)
}

// TestDebouncer_CheckpointRoundtrip verifies Restore continues a pending
// quiet period so the change still triggers exactly once after a restart.
func TestDebouncer_CheckpointRoundtrip(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	d := NewDebouncer(10 * time.Second)

	// No state before the first sample.
	_, ok := d.Checkpoint()
	require.False(t, ok)

	require.Nil(t, d.Observe(Sample{Value: 5, ReadAt: base}))
	require.Nil(t, d.Observe(Sample{Value: 9, ReadAt: base.Add(2 * time.Second)}))

	snapshot, ok := d.Checkpoint()
	require.True(t, ok)
	require.True(t, snapshot.Armed)
	require.Equal(t, int64(9), snapshot.LastValue)

	// Simulated restart: the restored machine finishes the same cycle.
	restored := NewDebouncer(10 * time.Second)
	restored.Restore(snapshot)
	require.True(t, restored.Armed())

	require.Nil(t, restored.Observe(Sample{Value: 9, ReadAt: base.Add(6 * time.Second)}))

	event := restored.Observe(Sample{Value: 9, ReadAt: base.Add(12 * time.Second)})
	require.NotNil(t, event)
	require.Equal(t, int64(9), event.TriggeringValue)

	// And only once.
	require.Nil(t, restored.Observe(Sample{Value: 9, ReadAt: base.Add(30 * time.Second)}))
}

// TestTriggerRunClone verifies that Clone returns a copy and handles nil safely.
func TestTriggerRunClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*TriggerRun)(nil).Clone())

	run := &TriggerRun{
		TriggeringValue: 7,
		Status:          RunStatusSucceeded,
		Hostname:        "press-station-2",
		Username:        "operator",
	}

	cloned := run.Clone()

	require.Equal(t, run, cloned)
	require.NotSame(t, run, cloned)
}
