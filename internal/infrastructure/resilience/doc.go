/*
Package resilience provides the failure-handling building blocks of the
session transport: reconnection backoff and call failure detection.

# Backoff

Backoff computes the delay before each reconnection attempt. The delay
doubles from Base up to Max and is spread by a symmetric Jitter fraction so
that many clients losing the same host do not reconnect in lockstep:

	b := resilience.Backoff{
		Base:        500 * time.Millisecond,
		Max:         8 * time.Second,
		Jitter:      0.2,
		MaxAttempts: 5,
	}
	for attempt := 1; !b.Exhausted(attempt); attempt++ {
		time.Sleep(b.Delay(attempt))
		if err := dial(); err == nil {
			break
		}
	}

With the values above the un-jittered schedule is 500ms, 1s, 2s, 4s, 8s.

# Failure detection

A Detector counts call outcomes and trips once ReadyToTrip reports the
backend unhealthy. A connection can look open while every call on it fails;
the detector turns that into an explicit reconnect:

	detector := resilience.NewDetector("transport", resilience.Settings{
		ReadyToTrip: resilience.ConsecutiveFailures(3),
		OnTrip: func(name string, counts resilience.Counts) {
			log.Printf("%s unhealthy after %d failures", name, counts.ConsecutiveFailures)
		},
	})

	detector.Record(err)

A tripped detector stays tripped until Reset, so a burst of failures
produces one trip.
*/
package resilience
