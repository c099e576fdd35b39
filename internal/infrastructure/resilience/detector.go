package resilience

import (
	"sync"
	"time"
)

// Settings configures a Detector
type Settings struct {
	// Interval is the cyclic period after which counts are cleared; zero
	// keeps counts until Reset
	Interval time.Duration
	// ReadyToTrip is called with counts after each failure
	ReadyToTrip func(counts Counts) bool
	// OnTrip is called once each time the detector trips. It runs outside
	// the detector's lock.
	OnTrip func(name string, counts Counts)
}

// Counts holds the outcome statistics since the last reset
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Detector watches call outcomes and trips when ReadyToTrip says the
// backend is unhealthy. A tripped detector ignores further outcomes until
// Reset, so one bad stretch produces a single trip.
type Detector struct {
	name     string
	settings Settings

	mu      sync.Mutex
	counts  Counts
	tripped bool
	expiry  time.Time
}

// NewDetector creates a detector. The default trips on five consecutive
// failures.
func NewDetector(name string, settings Settings) *Detector {
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	d := &Detector{name: name, settings: settings}
	if settings.Interval > 0 {
		d.expiry = time.Now().Add(settings.Interval)
	}
	return d
}

// ConsecutiveFailures trips after n failures in a row
func ConsecutiveFailures(n uint32) func(Counts) bool {
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// Name returns the detector's name
func (d *Detector) Name() string {
	return d.name
}

// Tripped reports whether the detector has tripped since the last Reset
func (d *Detector) Tripped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tripped
}

// Counts returns a copy of the current counts
func (d *Detector) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expire(time.Now())
	return d.counts
}

// Success records a successful call
func (d *Detector) Success() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tripped {
		return
	}
	d.expire(time.Now())
	d.counts.Requests++
	d.counts.TotalSuccesses++
	d.counts.ConsecutiveSuccesses++
	d.counts.ConsecutiveFailures = 0
}

// Failure records a failed call and reports whether it tripped the detector
func (d *Detector) Failure() bool {
	d.mu.Lock()
	if d.tripped {
		d.mu.Unlock()
		return false
	}
	d.expire(time.Now())
	d.counts.Requests++
	d.counts.TotalFailures++
	d.counts.ConsecutiveFailures++
	d.counts.ConsecutiveSuccesses = 0

	if !d.settings.ReadyToTrip(d.counts) {
		d.mu.Unlock()
		return false
	}
	d.tripped = true
	counts := d.counts
	d.mu.Unlock()

	if d.settings.OnTrip != nil {
		d.settings.OnTrip(d.name, counts)
	}
	return true
}

// Record records an outcome; a nil error is a success
func (d *Detector) Record(err error) bool {
	if err == nil {
		d.Success()
		return false
	}
	return d.Failure()
}

// Reset clears counts and re-arms the detector
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts = Counts{}
	d.tripped = false
	if d.settings.Interval > 0 {
		d.expiry = time.Now().Add(d.settings.Interval)
	}
}

// expire clears counts at the end of each interval. Caller holds d.mu.
func (d *Detector) expire(now time.Time) {
	if d.expiry.IsZero() || now.Before(d.expiry) {
		return
	}
	d.counts = Counts{}
	d.expiry = now.Add(d.settings.Interval)
}
