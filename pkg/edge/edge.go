// Package edge provides the forward-only cursor over the transitions of a captured line.
package edge

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
)

// Source delivers the transitions of a line in sample order.
// Next blocks until a transition is available. It returns io.EOF if the capture has ended.
type Source interface {
	Next(ctx context.Context) (port.Event, error)
}

// deliveryDelay is the max time between a transition on a live line and its arrival on the channel.
const deliveryDelay = 5 * time.Millisecond

// Timed is implemented by live sources whose samples follow the wall clock.
type Timed interface {
	// Duration returns the time span of n samples, 0 if the source has no clock.
	Duration(n uint64) time.Duration
}

// Stream is a cursor over a Source.
// It is positioned on the last transition reached and buffers at most one transition ahead.
type Stream struct {
	src    Source
	sample uint64
	level  port.Level

	// peeked holds the transition read ahead by WouldCross.
	peeked    port.Event
	hasPeeked bool
	// eof is set once the source reported io.EOF.
	eof bool
}

// NewStream creates a cursor at sample 0 with the line at level initial.
func NewStream(src Source, initial port.Level) *Stream {
	return &Stream{src: src, level: initial}
}

// Sample returns the sample number of the current position.
func (s *Stream) Sample() uint64 {
	return s.sample
}

// Level returns the line level at the current position.
func (s *Stream) Level() port.Level {
	return s.level
}

// Advance moves the cursor to the next transition.
func (s *Stream) Advance(ctx context.Context) error {
	evt, err := s.next(ctx)
	if err != nil {
		return err
	}

	s.sample = evt.Sample
	s.level = evt.Level()
	return nil
}

// WouldCross reports whether a transition lies within n samples after the current position.
// The transition is not consumed. An ended capture has no further transitions.
// A Timed source is waited for at most the duration of n samples.
func (s *Stream) WouldCross(ctx context.Context, n uint64) (bool, error) {
	if !s.hasPeeked {
		readCtx := ctx
		if t, ok := s.src.(Timed); ok {
			if d := t.Duration(n); d > 0 {
				var cancel context.CancelFunc
				readCtx, cancel = context.WithTimeout(ctx, d+deliveryDelay)
				defer cancel()
			}
		}

		evt, err := s.read(readCtx)
		if err == io.EOF {
			return false, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// the line stayed quiet
			return false, nil
		}
		if err != nil {
			return false, err
		}
		s.peeked, s.hasPeeked = evt, true
	}

	return s.peeked.Sample-s.sample <= n, nil
}

func (s *Stream) next(ctx context.Context) (port.Event, error) {
	if s.hasPeeked {
		s.hasPeeked = false
		return s.peeked, nil
	}
	return s.read(ctx)
}

func (s *Stream) read(ctx context.Context) (port.Event, error) {
	if s.eof {
		return port.Event{}, io.EOF
	}

	evt, err := s.src.Next(ctx)
	if err == io.EOF {
		s.eof = true
	}
	return evt, err
}

// SliceSource is a Source over recorded transitions.
type SliceSource struct {
	events []port.Event
	index  int
}

// NewSliceSource creates a Source over events.
func NewSliceSource(events []port.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next recorded transition or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (port.Event, error) {
	if err := ctx.Err(); err != nil {
		return port.Event{}, err
	}
	if s.index >= len(s.events) {
		return port.Event{}, io.EOF
	}

	evt := s.events[s.index]
	s.index++
	return evt, nil
}

// ChanSource is a Source over a live channel of transitions, e.g. a gpio line.
// A closed channel ends the capture.
type ChanSource struct {
	C <-chan port.Event
	// SampleRate is the rate of wall clock samples, 0 if the samples aren't timestamps.
	SampleRate uint32
}

// Duration returns the time span of n samples.
func (s ChanSource) Duration(n uint64) time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(n * uint64(time.Second) / uint64(s.SampleRate))
}

// Next waits for the next transition on the channel.
func (s ChanSource) Next(ctx context.Context) (port.Event, error) {
	select {
	case <-ctx.Done():
		return port.Event{}, ctx.Err()
	case evt, open := <-s.C:
		if !open {
			return port.Event{}, io.EOF
		}
		return evt, nil
	}
}
