package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/app/config"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/capture"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/edge"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/raspberry"
	"github.com/womat/debug"
)

var ErrNoSampleRate = errors.New("sample rate unknown")

// source is an opened input with the line settings needed by the decoder.
type source struct {
	edge.Source
	io.Closer
	initial    port.Level
	sampleRate uint32
}

// openSource opens the gpio line, the capture file or the serial capture adapter.
func openSource(c config.InputConfig) (*source, error) {
	switch c.Source {
	case config.SourceGpio:
		line, err := raspberry.Open(c.Driver, c.Gpio, c.Terminator)
		if err != nil {
			return nil, err
		}
		return &source{
			Source:     edge.ChanSource{C: line.Events(), SampleRate: raspberry.SampleRate},
			Closer:     line,
			initial:    line.Level(),
			sampleRate: raspberry.SampleRate,
		}, nil

	case config.SourceFile:
		f, err := os.Open(c.File)
		if err != nil {
			return nil, err
		}
		r, err := capture.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("capture %s: %w", c.File, err)
		}
		debug.InfoLog.Printf("reading capture %s", c.File)
		return newSource(r, f, r.Initial(), c.SampleRate, r.SampleRate())

	case config.SourceSerial:
		s, err := capture.OpenSerial(c.Port, c.BaudRate)
		if err != nil {
			return nil, err
		}
		debug.InfoLog.Printf("reading capture adapter on %s", c.Port)
		return newSource(s, s, s.Initial(), c.SampleRate, s.SampleRate())

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidSource, c.Source)
	}
}

// newSource selects the configured sample rate, or the rate of the capture header if none is configured.
func newSource(src edge.Source, closer io.Closer, initial port.Level, configured, header uint32) (*source, error) {
	rate := configured
	if rate == 0 {
		rate = header
	}
	if rate == 0 {
		_ = closer.Close()
		return nil, ErrNoSampleRate
	}
	return &source{Source: src, Closer: closer, initial: initial, sampleRate: rate}, nil
}
