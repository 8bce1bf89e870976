package dnp3

import "sync"

// StatisticsKind enumerates the per-channel counters of §6.2. Every counter
// is monotonically non-decreasing until Registry.Reset zeroes it; the
// channel manager does not call Reset when a channel is torn down or
// rebuilt.
type StatisticsKind int

const (
	BytesSent StatisticsKind = iota
	BytesReceived
	FramesSent
	FramesReceived
	ConfirmationsSent
	ConfirmationsReceived
	ChecksumErrors
	FrameFormatErrors
	UnexpectedBytesReceived
	SucceededConnections
	FailedConnections
	LostConnections
)

var statisticsNames = map[StatisticsKind]string{
	BytesSent:               "BytesSent",
	BytesReceived:           "BytesReceived",
	FramesSent:              "FramesSent",
	FramesReceived:          "FramesReceived",
	ConfirmationsSent:       "ConfirmationsSent",
	ConfirmationsReceived:   "ConfirmationsReceived",
	ChecksumErrors:          "ChecksumErrors",
	FrameFormatErrors:       "FrameFormatErrors",
	UnexpectedBytesReceived: "UnexpectedBytesReceived",
	SucceededConnections:    "SucceededConnections",
	FailedConnections:       "FailedConnections",
	LostConnections:         "LostConnections",
}

func (k StatisticsKind) String() string {
	if name, ok := statisticsNames[k]; ok {
		return name
	}
	return "Unknown"
}

// StatChangeFunc is invoked exactly once per mutation of a Counter that has
// a subscriber attached. The source's C++ revision invoked an equivalent
// handler twice per post-increment from the Parser/Channel constructors;
// that double-call is a bug and is not reproduced here.
//
// The three-argument (isBackup, kind, delta) form is adopted, per the open
// question in §9 — older revisions used a two-argument (kind, delta) form.
type StatChangeFunc func(isBackup bool, kind StatisticsKind, delta uint64)

// Counter is a single monotone statistic with an optional change
// subscription. All mutation happens on the owning channel's strand, so no
// internal locking is required beyond what callers already provide; the
// mutex here only protects the rare case of a counter being read from
// outside the strand (e.g. a monitoring goroutine).
type Counter struct {
	mu       sync.Mutex
	value    uint64
	kind     StatisticsKind
	isBackup bool
	onChange StatChangeFunc
}

// NewCounter creates a Counter for the given kind. isBackup marks whether
// this counter belongs to the backup or primary physical channel, forwarded
// verbatim to onChange subscribers.
func NewCounter(kind StatisticsKind, isBackup bool) *Counter {
	return &Counter{kind: kind, isBackup: isBackup}
}

// OnChange installs (or replaces) the change subscription.
func (c *Counter) OnChange(fn StatChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Add increments the counter by delta and fires the subscription exactly
// once, if one is installed.
func (c *Counter) Add(delta uint64) {
	c.mu.Lock()
	c.value += delta
	fn := c.onChange
	kind := c.kind
	isBackup := c.isBackup
	c.mu.Unlock()
	if fn != nil {
		fn(isBackup, kind, delta)
	}
}

// Value returns the current counter value.
func (c *Counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Registry is the full set of per-channel counters. channel.Manager
// creates one in New and keeps it across resets and rebuilds.
type Registry struct {
	isBackup bool
	counters map[StatisticsKind]*Counter
}

// NewRegistry allocates a counter for every StatisticsKind.
func NewRegistry(isBackup bool) *Registry {
	r := &Registry{isBackup: isBackup, counters: make(map[StatisticsKind]*Counter, len(statisticsNames))}
	for kind := range statisticsNames {
		r.counters[kind] = NewCounter(kind, isBackup)
	}
	return r
}

// Get returns the Counter for kind, allocating a fresh zero-valued one if
// somehow not pre-populated (defensive against future StatisticsKind values).
func (r *Registry) Get(kind StatisticsKind) *Counter {
	c, ok := r.counters[kind]
	if !ok {
		c = NewCounter(kind, r.isBackup)
		r.counters[kind] = c
	}
	return c
}

// OnChangeAll installs fn on every counter in the registry.
func (r *Registry) OnChangeAll(fn StatChangeFunc) {
	for _, c := range r.counters {
		c.OnChange(fn)
	}
}

// Reset reinitializes every counter to zero, as happens on channel teardown.
func (r *Registry) Reset() {
	for kind := range r.counters {
		r.counters[kind] = NewCounter(kind, r.isBackup)
	}
}
