//go:build linux

package raspberry

import (
	"time"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
	"github.com/warthog618/gpio"
	"github.com/womat/debug"
)

// MemLine is a pin watched through the memory mapped GPIO registers (/dev/gpiomem).
// The timestamps are taken in the interrupt handler and are less accurate than the gpiod timestamps.
type MemLine struct {
	gpioPin *gpio.Pin
	start   time.Time
	initial port.Level
	rec     *recorder
}

// openMemLine maps the GPIO memory and watches both edges of the pin.
// The pin number provided is the BCM GPIO number.
func openMemLine(p int, terminator string) (*MemLine, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}

	l := &MemLine{gpioPin: gpio.NewPin(p), start: time.Now()}
	l.gpioPin.Input()
	switch terminator {
	case "pullup":
		l.gpioPin.PullUp()
	case "pulldown":
		l.gpioPin.PullDown()
	default:
		l.gpioPin.PullNone()
	}

	l.initial = level(l.gpioPin.Read())
	l.rec = newRecorder(l.initial)

	if err := l.gpioPin.Watch(gpio.EdgeBoth, l.handler); err != nil {
		_ = gpio.Close()
		return nil, err
	}

	debug.InfoLog.Printf("watching gpiomem pin %d, level %v", p, l.initial)
	return l, nil
}

func (l *MemLine) handler(p *gpio.Pin) {
	l.rec.record(time.Since(l.start), level(p.Read()))
}

// Events returns the transitions of the pin.
func (l *MemLine) Events() <-chan port.Event {
	return l.rec.C
}

// Level returns the pin level at open time.
func (l *MemLine) Level() port.Level {
	return l.initial
}

// Close removes the interrupt handler and unmaps GPIO memory.
func (l *MemLine) Close() error {
	l.gpioPin.Unwatch()
	close(l.rec.C)
	return gpio.Close()
}

func level(v gpio.Level) port.Level {
	if v {
		return port.High
	}
	return port.Low
}
