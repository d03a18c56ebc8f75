package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxsim"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
)

func TestReader(t *testing.T) {
	const text = `# recorded on the bench
samplerate 16000000
initial 1

136 0   # first edge
144 1
152 0
`
	c, events, err := ReadAll(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.SampleRate() != 16000000 || c.Initial() != port.High {
		t.Errorf("header = %d/%v, want 16000000/high", c.SampleRate(), c.Initial())
	}

	want := []port.Event{
		{Sample: 136, Type: port.FallingEdge},
		{Sample: 144, Type: port.RisingEdge},
		{Sample: 152, Type: port.FallingEdge},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestReaderWithoutHeader(t *testing.T) {
	c, events, err := ReadAll(strings.NewReader("5 1\n9 0\n"))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.SampleRate() != 0 || c.Initial() != port.Low || len(events) != 2 {
		t.Errorf("ReadAll() = %d/%v/%v", c.SampleRate(), c.Initial(), events)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line string
	}{
		{"bad level", "initial 0\n10 2\n", "line 2"},
		{"bad sample", "initial 0\nx 1\n", "line 2"},
		{"not increasing", "initial 0\n10 1\n10 0\n", "line 3"},
		{"no level change", "initial 0\n10 1\n20 1\n", "line 3"},
		{"first edge keeps level", "initial 1\n10 1\n", "line 2"},
		{"directive after data", "10 1\nsamplerate 5\n", "line 2"},
		{"bad sample rate", "samplerate 0\n", "line 1"},
		{"too many fields", "# c\n10 1 2\n", "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadAll(strings.NewReader(tt.text))
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("ReadAll() error = %v, want ErrSyntax", err)
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("error %q does not name %s", err, tt.line)
			}
		})
	}
}

func TestReaderCancelled(t *testing.T) {
	c, err := NewReader(strings.NewReader("10 1\n"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err = c.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
	if _, err = c.Next(context.Background()); err != nil {
		t.Errorf("Next() error = %v", err)
	}
	if _, err = c.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestRoundTrip(t *testing.T) {
	config := auxsim.Config{BitRate: 1000000, SampleRate: 16000000, Inverted: true}
	initial, events := auxsim.Generate(config, []byte{0x10, 0x20})

	var buf bytes.Buffer
	w, err := NewWriter(&buf, config.SampleRate, initial)
	if err != nil {
		t.Fatal(err)
	}
	if err = w.Comment("two bytes"); err != nil {
		t.Fatal(err)
	}
	for _, evt := range events {
		if err = w.Write(evt); err != nil {
			t.Fatal(err)
		}
	}
	if err = w.Flush(); err != nil {
		t.Fatal(err)
	}

	c, got, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if c.SampleRate() != config.SampleRate || c.Initial() != initial {
		t.Errorf("header = %d/%v, want %d/%v", c.SampleRate(), c.Initial(), config.SampleRate, initial)
	}
	if len(got) != len(events) {
		t.Fatalf("%d events read, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i] != events[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], events[i])
		}
	}
}

func TestWriteAllWithoutSampleRate(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAll(&buf, 0, port.Low, []port.Event{{Sample: 3, Type: port.RisingEdge}}); err != nil {
		t.Fatal(err)
	}
	if want := "initial 0\n3 1\n"; buf.String() != want {
		t.Errorf("WriteAll() = %q, want %q", buf.String(), want)
	}
}
