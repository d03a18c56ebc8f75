package edge

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
)

func testEvents() []port.Event {
	return []port.Event{
		{Sample: 10, Type: port.RisingEdge},
		{Sample: 18, Type: port.FallingEdge},
		{Sample: 34, Type: port.RisingEdge},
	}
}

func TestStreamAdvance(t *testing.T) {
	ctx := context.Background()
	s := NewStream(NewSliceSource(testEvents()), port.Low)

	if s.Sample() != 0 || s.Level() != port.Low {
		t.Fatalf("initial position = %d/%v, want 0/low", s.Sample(), s.Level())
	}

	for _, want := range testEvents() {
		if err := s.Advance(ctx); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if s.Sample() != want.Sample || s.Level() != want.Level() {
			t.Errorf("position = %d/%v, want %d/%v", s.Sample(), s.Level(), want.Sample, want.Level())
		}
	}

	if err := s.Advance(ctx); err != io.EOF {
		t.Errorf("Advance() at end error = %v, want io.EOF", err)
	}
	// position is kept at the last transition
	if s.Sample() != 34 {
		t.Errorf("Sample() = %d, want 34", s.Sample())
	}
}

func TestStreamWouldCross(t *testing.T) {
	ctx := context.Background()
	s := NewStream(NewSliceSource(testEvents()), port.Low)

	if err := s.Advance(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		n    uint64
		want bool
	}{
		{7, false},
		{8, true},
		{100, true},
	}
	for _, tt := range tests {
		got, err := s.WouldCross(ctx, tt.n)
		if err != nil {
			t.Fatalf("WouldCross(%d) error = %v", tt.n, err)
		}
		if got != tt.want {
			t.Errorf("WouldCross(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	// lookahead must not consume the transition
	if err := s.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Sample() != 18 {
		t.Errorf("Sample() after lookahead = %d, want 18", s.Sample())
	}
}

func TestStreamWouldCrossAtEnd(t *testing.T) {
	ctx := context.Background()
	s := NewStream(NewSliceSource(testEvents()[:1]), port.Low)
	if err := s.Advance(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := s.WouldCross(ctx, 1000)
	if err != nil || got {
		t.Errorf("WouldCross() at end = %v, %v, want false, nil", got, err)
	}
	if err := s.Advance(ctx); err != io.EOF {
		t.Errorf("Advance() error = %v, want io.EOF", err)
	}
}

func TestChanSource(t *testing.T) {
	c := make(chan port.Event, 1)
	s := NewStream(ChanSource{C: c}, port.High)

	c <- port.Event{Sample: 5, Type: port.FallingEdge}
	if err := s.Advance(context.Background()); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if s.Level() != port.Low {
		t.Errorf("Level() = %v, want low", s.Level())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Advance(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Advance() on idle line error = %v, want deadline exceeded", err)
	}

	close(c)
	if err := s.Advance(context.Background()); err != io.EOF {
		t.Errorf("Advance() on closed line error = %v, want io.EOF", err)
	}
}

func TestChanSourceQuietLine(t *testing.T) {
	// 1 MHz: 1000 samples are a millisecond
	c := make(chan port.Event, 1)
	src := ChanSource{C: c, SampleRate: 1000000}
	if d := src.Duration(1000); d != time.Millisecond {
		t.Errorf("Duration(1000) = %v, want 1ms", d)
	}
	if d := (ChanSource{C: c}).Duration(1000); d != 0 {
		t.Errorf("Duration() without sample rate = %v, want 0", d)
	}

	s := NewStream(src, port.Low)
	c <- port.Event{Sample: 100, Type: port.RisingEdge}
	if err := s.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}

	// nothing arrives within the wall clock time of 1000 samples
	got, err := s.WouldCross(context.Background(), 1000)
	if err != nil || got {
		t.Errorf("WouldCross() on quiet line = %v, %v, want false, nil", got, err)
	}

	// a late transition is still delivered
	c <- port.Event{Sample: 5000, Type: port.FallingEdge}
	if err = s.Advance(context.Background()); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if s.Sample() != 5000 {
		t.Errorf("Sample() = %d, want 5000", s.Sample())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err = s.WouldCross(ctx, 1000); !errors.Is(err, context.Canceled) {
		t.Errorf("WouldCross() cancelled error = %v, want context.Canceled", err)
	}
}
