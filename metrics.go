package goftp

import "time"

// Metrics receives pool and processor measurements.
//
// The prometheus implementation lives in the metrics package; a nil Metrics
// is replaced with a no-op.
type Metrics interface {
	SessionCreated()
	SessionDestroyed(reason string)
	Acquired(d time.Duration, err error)
	PoolSize(idle, inUse int)
	Operation(op string, d time.Duration, err error)
}

// Destroy reasons reported to Metrics.SessionDestroyed.
const (
	ReasonInvalid  = "invalid"
	ReasonDiscard  = "discard"
	ReasonOverflow = "overflow"
	ReasonEvicted  = "evicted"
	ReasonClosed   = "closed"
)

type noopMetrics struct{}

func (noopMetrics) SessionCreated()                        {}
func (noopMetrics) SessionDestroyed(string)                {}
func (noopMetrics) Acquired(time.Duration, error)          {}
func (noopMetrics) PoolSize(int, int)                      {}
func (noopMetrics) Operation(string, time.Duration, error) {}
