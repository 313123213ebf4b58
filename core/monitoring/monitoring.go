// Package monitoring forwards unexpected errors and panics to an error
// tracker. The process-wide monitor defaults to a no-op.
package monitoring

import "time"

// Monitor reports errors to an external tracker.
type Monitor interface {
	CaptureError(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureError(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                      {}
func (NopMonitor) Flush(time.Duration)                   {}

var current Monitor = NopMonitor{}

// Init replaces the process-wide monitor. A nil monitor is ignored.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// Current returns the process-wide monitor.
func Current() Monitor { return current }

// CaptureError reports err tagged with the component that hit it.
func CaptureError(component string, err error) {
	if err == nil {
		return
	}
	current.CaptureError(err, map[string]string{"component": component})
}

// Recover reports a panic then re-panics. It must be deferred directly.
func Recover() {
	if r := recover(); r != nil {
		current.CapturePanic(r)
		panic(r)
	}
}

// Flush waits for buffered reports to be sent.
func Flush(d time.Duration) { current.Flush(d) }
