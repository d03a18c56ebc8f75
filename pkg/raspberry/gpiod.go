//go:build linux

package raspberry

import (
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

const chipName = "gpiochip0"

// ChipLine represents a single line requested from a GPIO character device.
type ChipLine struct {
	gpiodChip *gpiod.Chip
	gpiodLine *gpiod.Line
	initial   port.Level
	rec       *recorder
}

// openChipLine requests control of a single line on the chip and watches both edges.
// The event timestamps are taken by the kernel.
func openChipLine(gpio int, terminator string) (*ChipLine, error) {
	c, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, err
	}

	line := &ChipLine{gpiodChip: c}

	// the handler is set up before the line is requested, it only uses the recorder
	var rec *recorder
	handler := func(evt gpiod.LineEvent) {
		switch evt.Type {
		case gpiod.LineEventRisingEdge:
			rec.record(evt.Timestamp, port.High)
		case gpiod.LineEventFallingEdge:
			rec.record(evt.Timestamp, port.Low)
		default:
			debug.ErrorLog.Printf("invalid line event: %v", evt.Type)
		}
	}

	// read the level before the first event can arrive
	probe, err := c.RequestLine(gpio, gpiod.AsInput)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	v, err := probe.Value()
	_ = probe.Close()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if v == 1 {
		line.initial = port.High
	}
	rec = newRecorder(line.initial)
	line.rec = rec

	switch terminator {
	case "pullup":
		line.gpiodLine, err = c.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullUp)
	case "pulldown":
		line.gpiodLine, err = c.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullDown)
	default:
		line.gpiodLine, err = c.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput)
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	debug.InfoLog.Printf("watching %s line %d, level %v", chipName, gpio, line.initial)
	return line, nil
}

// Events returns the transitions of the line.
func (l *ChipLine) Events() <-chan port.Event {
	return l.rec.C
}

// Level returns the line level at open time.
func (l *ChipLine) Level() port.Level {
	return l.initial
}

// Close releases all resources held by the requested line and the chip.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (l *ChipLine) Close() error {
	if err := l.gpiodLine.Close(); err != nil {
		return err
	}
	close(l.rec.C)
	return l.gpiodChip.Close()
}
