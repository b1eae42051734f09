package messaging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy re-runs an operation a fixed number of times with a fixed
// delay between attempts. Only errors the predicate accepts are retried;
// anything else is returned immediately. After the last attempt the last
// error is returned unchanged.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func (p RetryPolicy) Do(op func() error, retryable func(error) bool) error {
	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		last = op()
		if last == nil || !retryable(last) {
			return last
		}
		if attempt < p.Attempts {
			logrus.Warnf("Delivery attempt %d/%d failed: %v. Retrying in %s", attempt, p.Attempts, last, p.Delay)
			time.Sleep(p.Delay)
		}
	}
	return last
}
