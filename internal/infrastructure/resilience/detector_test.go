package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorTrips(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool // true = success, false = failure
		tripped  bool
	}{
		{
			name:     "stays healthy on successes",
			outcomes: []bool{true, true, true},
			tripped:  false,
		},
		{
			name:     "trips after consecutive failures",
			outcomes: []bool{false, false, false},
			tripped:  true,
		},
		{
			name:     "success resets the run",
			outcomes: []bool{false, false, true, false, false},
			tripped:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector("test", Settings{ReadyToTrip: ConsecutiveFailures(3)})
			for _, ok := range tt.outcomes {
				if ok {
					d.Success()
				} else {
					d.Failure()
				}
			}
			assert.Equal(t, tt.tripped, d.Tripped())
		})
	}
}

func TestDetectorTripsOnce(t *testing.T) {
	var trips atomic.Int32
	d := NewDetector("transport", Settings{
		ReadyToTrip: ConsecutiveFailures(2),
		OnTrip: func(name string, counts Counts) {
			assert.Equal(t, "transport", name)
			assert.Equal(t, uint32(2), counts.ConsecutiveFailures)
			trips.Add(1)
		},
	})

	assert.False(t, d.Failure())
	assert.True(t, d.Failure())
	assert.False(t, d.Failure())
	assert.False(t, d.Failure())
	assert.Equal(t, int32(1), trips.Load())

	d.Reset()
	assert.False(t, d.Tripped())
	assert.Equal(t, Counts{}, d.Counts())

	d.Failure()
	d.Failure()
	assert.Equal(t, int32(2), trips.Load())
}

func TestDetectorRecord(t *testing.T) {
	d := NewDetector("test", Settings{ReadyToTrip: ConsecutiveFailures(1)})

	assert.False(t, d.Record(nil))
	counts := d.Counts()
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	assert.True(t, d.Record(errors.New("boom")))
	assert.True(t, d.Tripped())
}

func TestDetectorDefaultThreshold(t *testing.T) {
	d := NewDetector("test", Settings{})
	for i := 0; i < 4; i++ {
		d.Failure()
	}
	assert.False(t, d.Tripped())
	d.Failure()
	assert.True(t, d.Tripped())
}

func TestDetectorInterval(t *testing.T) {
	d := NewDetector("test", Settings{
		Interval:    20 * time.Millisecond,
		ReadyToTrip: ConsecutiveFailures(3),
	})
	d.Failure()
	d.Failure()
	require.Equal(t, uint32(2), d.Counts().ConsecutiveFailures)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, uint32(0), d.Counts().ConsecutiveFailures)

	d.Failure()
	assert.False(t, d.Tripped())
}

func TestDetectorConcurrent(t *testing.T) {
	var trips atomic.Int32
	d := NewDetector("test", Settings{
		ReadyToTrip: ConsecutiveFailures(10),
		OnTrip:      func(string, Counts) { trips.Add(1) },
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Failure()
		}()
	}
	wg.Wait()

	assert.True(t, d.Tripped())
	assert.Equal(t, int32(1), trips.Load())
}
