// Package quota tracks advisory usage against per-provider request limits so
// callers can prefer the least used of several equivalent providers.
//
// The tracker is process-local: counts are lost on restart.
package quota

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Unbounded is reported as the remaining count of unlimited or unknown
// services.
const Unbounded = math.MaxInt

// Period is the window over which a limit is counted.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Duration returns the window length. Months are 30 days.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodHour:
		return time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Limit is the configured quota of one service.
type Limit struct {
	Requests  int
	Period    Period
	Unlimited bool
}

// DefaultLimits is the provider catalog.
var DefaultLimits = map[string]Limit{
	// geocoding
	"locationiq": {Requests: 5000, Period: PeriodDay},
	"opencage":   {Requests: 2500, Period: PeriodDay},
	"photon":     {Requests: 10000, Period: PeriodDay},
	"nominatim":  {Requests: 1, Period: PeriodHour},

	// routing
	"openrouteservice": {Requests: 2000, Period: PeriodDay},
	"graphhopper":      {Requests: 500, Period: PeriodDay},
	"osrm":             {Requests: 10000, Period: PeriodDay},
	"geolib":           {Unlimited: true, Period: PeriodDay},

	// currency
	"exchangerate-api":  {Requests: 1500, Period: PeriodMonth},
	"exchangerate-host": {Requests: 100, Period: PeriodMonth},
	"fixer":             {Requests: 100, Period: PeriodMonth},
	"frankfurter":       {Requests: 10000, Period: PeriodDay},

	// fuel
	"fuel-database": {Unlimited: true, Period: PeriodDay},
}

// Entry is a point-in-time view of one service.
type Entry struct {
	Service   string     `json:"service"`
	Limit     int        `json:"limit"`
	Period    Period     `json:"period"`
	Unlimited bool       `json:"unlimited"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
	BlockedTo *time.Time `json:"blocked_until,omitempty"`
}

type usage struct {
	count        int
	resetAt      time.Time
	blockedUntil time.Time
}

// Tracker counts requests per service within the current window.
type Tracker struct {
	mu     sync.Mutex
	limits map[string]Limit
	usage  map[string]*usage
	clock  func() time.Time
	margin float64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTracker builds a tracker over limits. A nil map uses DefaultLimits.
func NewTracker(limits map[string]Limit, opts ...Option) *Tracker {
	if limits == nil {
		limits = DefaultLimits
	}
	copied := make(map[string]Limit, len(limits))
	for name, limit := range limits {
		copied[name] = limit
	}

	t := &Tracker{
		limits: copied,
		usage:  make(map[string]*usage),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CanUse reports whether another request to the service fits in its quota.
// Unknown services are allowed. An elapsed window is reset.
func (t *Tracker) CanUse(name string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	limit, ok := t.limitLocked(name)
	if !ok || limit.Unlimited {
		return true
	}

	state, ok := t.usage[name]
	if !ok {
		return true
	}

	now := t.clock()
	if now.Before(state.blockedUntil) {
		return false
	}
	if !now.Before(state.resetAt) {
		delete(t.usage, name)
		return true
	}
	return state.count < limit.Requests
}

// RecordUse counts one request against the service. Unknown and unlimited
// services are not tracked.
func (t *Tracker) RecordUse(name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	limit, ok := t.limitLocked(name)
	if !ok || limit.Unlimited {
		return
	}

	now := t.clock()
	state, ok := t.usage[name]
	if !ok {
		t.usage[name] = &usage{count: 1, resetAt: now.Add(limit.Period.Duration())}
		return
	}
	if !now.Before(state.resetAt) {
		state.count = 1
		state.resetAt = now.Add(limit.Period.Duration())
		return
	}
	state.count++
}

// RecordRateLimited blocks the service until retryAfter has passed, after
// the provider itself answered 429.
func (t *Tracker) RecordRateLimited(name string, retryAfter time.Duration) {
	if t == nil || retryAfter <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	limit, ok := t.limitLocked(name)
	if !ok || limit.Unlimited {
		return
	}

	now := t.clock()
	state, ok := t.usage[name]
	if !ok || !now.Before(state.resetAt) {
		state = &usage{resetAt: now.Add(limit.Period.Duration())}
		t.usage[name] = state
	}
	state.blockedUntil = now.Add(retryAfter)
}

// Remaining returns the requests left in the current window, never negative.
func (t *Tracker) Remaining(name string) int {
	if t == nil {
		return Unbounded
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(name)
}

// RankByAvailability returns names ordered by remaining quota, highest
// first. Ties keep their input order. The input is not modified.
func (t *Tracker) RankByAvailability(names []string) []string {
	ranked := make([]string, len(names))
	copy(ranked, names)
	if t == nil {
		return ranked
	}

	t.mu.Lock()
	remaining := make(map[string]int, len(ranked))
	for _, name := range ranked {
		remaining[name] = t.remainingLocked(name)
	}
	t.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return remaining[ranked[i]] > remaining[ranked[j]]
	})
	return ranked
}

// ApplyOverrides replaces the daily request limit of the named services.
// Blank names and non-positive values are ignored.
func (t *Tracker) ApplyOverrides(overrides map[string]int) {
	if t == nil || len(overrides) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, value := range overrides {
		name = strings.TrimSpace(name)
		if name == "" || value <= 0 {
			continue
		}
		t.limits[name] = Limit{Requests: value, Period: PeriodDay}
	}
}

// ApplySafetyMargin scales every limit by a ratio in (0, 1].
func (t *Tracker) ApplySafetyMargin(margin float64) {
	if t == nil || margin <= 0 || margin > 1 {
		return
	}
	t.mu.Lock()
	t.margin = margin
	t.mu.Unlock()
}

// Snapshot returns every configured service sorted by name.
func (t *Tracker) Snapshot() []Entry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	entries := make([]Entry, 0, len(t.limits))
	for name := range t.limits {
		limit, _ := t.limitLocked(name)
		entry := Entry{
			Service:   name,
			Limit:     limit.Requests,
			Period:    limit.Period,
			Unlimited: limit.Unlimited,
			Remaining: t.remainingLocked(name),
		}
		if state, ok := t.usage[name]; ok && now.Before(state.resetAt) {
			entry.Used = state.count
			resetAt := state.resetAt
			entry.ResetAt = &resetAt
			if now.Before(state.blockedUntil) {
				blocked := state.blockedUntil
				entry.BlockedTo = &blocked
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Service < entries[j].Service })
	return entries
}

func (t *Tracker) remainingLocked(name string) int {
	limit, ok := t.limitLocked(name)
	if !ok || limit.Unlimited {
		return Unbounded
	}

	state, ok := t.usage[name]
	if !ok {
		return limit.Requests
	}
	now := t.clock()
	if !now.Before(state.resetAt) {
		return limit.Requests
	}
	if now.Before(state.blockedUntil) {
		return 0
	}
	return max(0, limit.Requests-state.count)
}

func (t *Tracker) limitLocked(name string) (Limit, bool) {
	limit, ok := t.limits[name]
	if !ok {
		return Limit{}, false
	}
	if limit.Unlimited || t.margin <= 0 || t.margin > 1 {
		return limit, true
	}
	adjusted := int(math.Floor(float64(limit.Requests) * t.margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.Requests = adjusted
	return limit, true
}
