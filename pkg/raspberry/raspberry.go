// Package raspberry is the watcher for gpio ports.
// A watched line delivers its transitions with nanosecond timestamps on a channel.
package raspberry

import (
	"errors"
	"fmt"
	"time"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
	"github.com/womat/debug"
)

const (
	// SampleRate is the rate of the transition timestamps: one sample per nanosecond.
	SampleRate = uint32(time.Second / time.Nanosecond)

	DriverGpiod   = "gpiod"
	DriverGpiomem = "gpiomem"

	// bufferSize is the count of transitions buffered between the line handler and the reader.
	bufferSize = 4096
)

var (
	ErrInvalidParam = fmt.Errorf("invalid parameters")
	ErrUnsupported  = errors.New("gpio capture isn't supported on this platform")
)

// Line is a watched gpio line.
type Line interface {
	// Events returns the channel of transitions. It is closed by Close.
	Events() <-chan port.Event
	// Level returns the line level at the time the line was opened.
	Level() port.Level
	Close() error
}

// Open watches gpio with the driver gpiod (character device) or gpiomem (memory mapped).
// terminator is pullup, pulldown or none.
func Open(driver string, gpio int, terminator string) (Line, error) {
	if gpio < 0 {
		return nil, fmt.Errorf("%w: gpio %d", ErrInvalidParam, gpio)
	}
	switch terminator {
	case "pullup", "pulldown", "none":
	default:
		return nil, fmt.Errorf("%w: terminator %q (pullup|pulldown|none)", ErrInvalidParam, terminator)
	}

	var (
		l   Line
		err error
	)
	switch driver {
	case DriverGpiod:
		l, err = openChipLine(gpio, terminator)
	case DriverGpiomem:
		l, err = openMemLine(gpio, terminator)
	default:
		return nil, fmt.Errorf("%w: driver %q (%s|%s)", ErrInvalidParam, driver, DriverGpiod, DriverGpiomem)
	}
	if err != nil {
		return nil, fmt.Errorf("can't open %s line %d: %w", driver, gpio, err)
	}
	return l, nil
}

// recorder converts level changes of a line handler to transitions.
// Repeated levels are dropped, timestamps are relative to the first transition.
type recorder struct {
	level   port.Level
	origin  time.Duration
	started bool
	// send edge changes to channel
	C chan port.Event
}

func newRecorder(initial port.Level) *recorder {
	return &recorder{level: initial, C: make(chan port.Event, bufferSize)}
}

// record must be called from a single handler goroutine.
func (r *recorder) record(ts time.Duration, level port.Level) {
	if level == r.level {
		debug.TraceLog.Printf("no changed level at %v", ts)
		return
	}
	if !r.started {
		r.origin, r.started = ts, true
	}
	if ts < r.origin {
		debug.ErrorLog.Printf("timestamp %v before first transition %v", ts, r.origin)
		return
	}

	evt := port.Event{Sample: uint64(ts - r.origin), Type: level.Edge()}
	select {
	case r.C <- evt:
		r.level = level
	default:
		// the reader is too slow, the transition is lost and the decoder will resync
		debug.ErrorLog.Printf("transition buffer full, %v edge at %v dropped", evt.Type, ts)
	}
}
