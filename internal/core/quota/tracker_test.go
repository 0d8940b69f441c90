package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func usedOf(t *testing.T, tracker *Tracker, name string) int {
	t.Helper()
	for _, entry := range tracker.Snapshot() {
		if entry.Service == name {
			return entry.Used
		}
	}
	t.Fatalf("service %q not in snapshot", name)
	return 0
}

func TestTrackerWindowReset(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(map[string]Limit{
		"x": {Requests: 2, Period: PeriodHour},
	}, WithClock(clock.Now))

	require.True(t, tracker.CanUse("x"))
	tracker.RecordUse("x")
	tracker.RecordUse("x")
	require.False(t, tracker.CanUse("x"))
	require.Equal(t, 0, tracker.Remaining("x"))

	clock.Advance(time.Hour)
	require.True(t, tracker.CanUse("x"))
	require.Equal(t, 2, tracker.Remaining("x"))

	tracker.RecordUse("x")
	require.Equal(t, 1, usedOf(t, tracker, "x"))
	require.Equal(t, 1, tracker.Remaining("x"))
}

func TestTrackerUnlimitedService(t *testing.T) {
	tracker := NewTracker(nil)
	for i := 0; i < 1000; i++ {
		tracker.RecordUse("geolib")
	}
	require.True(t, tracker.CanUse("geolib"))
	require.Equal(t, Unbounded, tracker.Remaining("geolib"))
}

func TestTrackerUnknownServiceFailsOpen(t *testing.T) {
	tracker := NewTracker(map[string]Limit{})
	tracker.RecordUse("mystery")
	require.True(t, tracker.CanUse("mystery"))
	require.Equal(t, Unbounded, tracker.Remaining("mystery"))
}

func TestTrackerRemainingNeverNegative(t *testing.T) {
	tracker := NewTracker(map[string]Limit{"x": {Requests: 1, Period: PeriodDay}})
	tracker.RecordUse("x")
	tracker.RecordUse("x")
	tracker.RecordUse("x")
	require.Equal(t, 0, tracker.Remaining("x"))
}

func TestRankByAvailabilityIsStable(t *testing.T) {
	tracker := NewTracker(map[string]Limit{
		"a": {Requests: 10, Period: PeriodDay},
		"b": {Requests: 10, Period: PeriodDay},
		"c": {Requests: 10, Period: PeriodDay},
	})
	tracker.RecordUse("c")

	input := []string{"c", "a", "b"}
	ranked := tracker.RankByAvailability(input)
	require.Equal(t, []string{"a", "b", "c"}, ranked)
	require.Equal(t, []string{"c", "a", "b"}, input)

	require.Equal(t, []string{"a", "b", "c"}, tracker.RankByAvailability([]string{"a", "b", "c"}))
}

func TestRankByAvailabilityPrefersUnlimited(t *testing.T) {
	tracker := NewTracker(nil)
	require.Equal(t, []string{"geolib", "osrm", "graphhopper"},
		tracker.RankByAvailability([]string{"graphhopper", "geolib", "osrm"}))
}

func TestTrackerOverridesAndMargin(t *testing.T) {
	tracker := NewTracker(map[string]Limit{"x": {Requests: 10, Period: PeriodMonth}})
	tracker.ApplyOverrides(map[string]int{"x": 4, " ": 3, "y": 0})
	require.Equal(t, 4, tracker.Remaining("x"))
	require.Equal(t, Unbounded, tracker.Remaining("y"))

	tracker.ApplySafetyMargin(0.5)
	require.Equal(t, 2, tracker.Remaining("x"))

	tracker.ApplySafetyMargin(0.01)
	require.Equal(t, 1, tracker.Remaining("x"))

	tracker.ApplySafetyMargin(2)
	require.Equal(t, 1, tracker.Remaining("x"))
}

func TestTrackerRateLimitedBlocksUntilRetryAfter(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(map[string]Limit{"x": {Requests: 100, Period: PeriodDay}}, WithClock(clock.Now))

	tracker.RecordRateLimited("x", 30*time.Second)
	require.False(t, tracker.CanUse("x"))
	require.Equal(t, 0, tracker.Remaining("x"))

	clock.Advance(31 * time.Second)
	require.True(t, tracker.CanUse("x"))
	require.Equal(t, 100, tracker.Remaining("x"))
}

func TestTrackerConcurrentUse(t *testing.T) {
	tracker := NewTracker(map[string]Limit{"x": {Requests: 10000, Period: PeriodDay}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if tracker.CanUse("x") {
					tracker.RecordUse("x")
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 9000, tracker.Remaining("x"))
}

func TestSnapshotSortedByName(t *testing.T) {
	tracker := NewTracker(nil)
	entries := tracker.Snapshot()
	require.Len(t, entries, len(DefaultLimits))
	for i := 1; i < len(entries); i++ {
		require.Less(t, entries[i-1].Service, entries[i].Service)
	}
}

func TestPeriodDuration(t *testing.T) {
	require.Equal(t, time.Hour, PeriodHour.Duration())
	require.Equal(t, 24*time.Hour, PeriodDay.Duration())
	require.Equal(t, 30*24*time.Hour, PeriodMonth.Duration())
}
