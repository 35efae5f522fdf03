package stream

import (
	"time"
)

// Status is the controller's externally visible lifecycle state.
type Status string

const (
	StatusBootstrapping Status = "bootstrapping"
	StatusRunning       Status = "running"
	StatusPaused        Status = "paused"
	StatusDraining      Status = "draining"
	StatusStopped       Status = "stopped"
	StatusFailed        Status = "failed"
)

// Progress is one report delivered to a ProgressSink.
type Progress struct {
	RunID         string
	DigitsWritten uint64
	StartDigits   uint64  // digits present when the run started
	Resumed       bool    // the run continued an existing artifact
	Rate          float64 // digits per second since the previous report
	SmoothedRate  float64 // exponentially smoothed Rate
	Status        Status
	Reason        string // pause reason or failure message
	At            time.Time
}

// ProgressSink receives progress reports at a fixed cadence.
// Implementations must not block for long; they run on the digit loop.
type ProgressSink interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(p Progress)

func (f ProgressFunc) Report(p Progress) { f(p) }

// Backpressure is polled before every step. While it reports true the
// controller is paused and takes no engine steps.
type Backpressure interface {
	ShouldPause() (bool, string)
}

// BackpressureFunc adapts a function to Backpressure.
type BackpressureFunc func() (bool, string)

func (f BackpressureFunc) ShouldPause() (bool, string) { return f() }

// Cancellation is polled at step boundaries. StopRequested must be idempotent.
type Cancellation interface {
	StopRequested() bool
}

// CancellationFunc adapts a function to Cancellation.
type CancellationFunc func() bool

func (f CancellationFunc) StopRequested() bool { return f() }

type nopSink struct{}

func (nopSink) Report(Progress) {}

// NopSink discards all reports.
var NopSink ProgressSink = nopSink{}

type neverPause struct{}

func (neverPause) ShouldPause() (bool, string) { return false, "" }

// NoBackpressure never pauses.
var NoBackpressure Backpressure = neverPause{}

type neverStop struct{}

func (neverStop) StopRequested() bool { return false }

// NoCancellation never requests a stop.
var NoCancellation Cancellation = neverStop{}

// MultiSink fans every report out to all non-nil sinks in order.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NopSink
	case 1:
		return out[0]
	}
	return out
}

type multiSink []ProgressSink

func (m multiSink) Report(p Progress) {
	for _, s := range m {
		s.Report(p)
	}
}

// AnyBackpressure pauses when any of the given predicates asks to, reporting
// the first reason.
func AnyBackpressure(preds ...Backpressure) Backpressure {
	return BackpressureFunc(func() (bool, string) {
		for _, p := range preds {
			if p == nil {
				continue
			}
			if pause, reason := p.ShouldPause(); pause {
				return true, reason
			}
		}
		return false, ""
	})
}

// AnyCancellation stops when any of the given sources asks to.
func AnyCancellation(sources ...Cancellation) Cancellation {
	return CancellationFunc(func() bool {
		for _, s := range sources {
			if s != nil && s.StopRequested() {
				return true
			}
		}
		return false
	})
}
