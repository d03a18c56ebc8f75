// Package capture reads and writes recorded line transitions.
//
// A capture is line oriented text:
//  # comment
//  samplerate 16000000
//  initial 0
//  136 1
//  144 0
// samplerate and initial (level in front of the first transition) are header directives.
// Every other line holds the sample number of a transition and the level after it.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
)

const (
	commentPrefix    = "#"
	directiveRate    = "samplerate"
	directiveInitial = "initial"
)

var ErrSyntax = errors.New("capture syntax error")

// Reader is an edge.Source over a capture.
type Reader struct {
	scanner    *bufio.Scanner
	line       int
	sampleRate uint32
	initial    port.Level

	// buffered is the first transition, read while parsing the header.
	buffered    port.Event
	hasBuffered bool
	last        port.Event
	hasLast     bool
}

// NewReader parses the header of a capture.
// It reads up to the first transition.
func NewReader(r io.Reader) (*Reader, error) {
	c := &Reader{scanner: bufio.NewScanner(r), initial: port.Low}

	for {
		fields, err := c.fields()
		if err == io.EOF {
			return c, nil
		}
		if err != nil {
			return nil, err
		}

		switch fields[0] {
		case directiveRate:
			if len(fields) != 2 {
				return nil, c.errorf("%s needs one value", directiveRate)
			}
			v, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil || v == 0 {
				return nil, c.errorf("invalid sample rate %q", fields[1])
			}
			c.sampleRate = uint32(v)

		case directiveInitial:
			if len(fields) != 2 {
				return nil, c.errorf("%s needs one value", directiveInitial)
			}
			l, err := c.level(fields[1])
			if err != nil {
				return nil, err
			}
			c.initial = l

		default:
			evt, err := c.event(fields)
			if err != nil {
				return nil, err
			}
			c.buffered, c.hasBuffered = evt, true
			return c, nil
		}
	}
}

// SampleRate returns the sample rate of the header, 0 if the header has none.
func (c *Reader) SampleRate() uint32 {
	return c.sampleRate
}

// Initial returns the line level in front of the first transition.
func (c *Reader) Initial() port.Level {
	return c.initial
}

// Next returns the next transition or io.EOF at the end of the capture.
func (c *Reader) Next(ctx context.Context) (port.Event, error) {
	if err := ctx.Err(); err != nil {
		return port.Event{}, err
	}

	if c.hasBuffered {
		c.hasBuffered = false
		return c.buffered, nil
	}

	fields, err := c.fields()
	if err != nil {
		return port.Event{}, err
	}
	if fields[0] == directiveRate || fields[0] == directiveInitial {
		return port.Event{}, c.errorf("%s after the first transition", fields[0])
	}
	return c.event(fields)
}

// ReadAll reads all transitions of a capture.
func ReadAll(r io.Reader) (*Reader, []port.Event, error) {
	c, err := NewReader(r)
	if err != nil {
		return nil, nil, err
	}

	var events []port.Event
	for {
		evt, err := c.Next(context.Background())
		if err == io.EOF {
			return c, events, nil
		}
		if err != nil {
			return nil, nil, err
		}
		events = append(events, evt)
	}
}

// fields returns the fields of the next line which is neither empty nor a comment.
func (c *Reader) fields() ([]string, error) {
	for c.scanner.Scan() {
		c.line++

		text := c.scanner.Text()
		if i := strings.Index(text, commentPrefix); i >= 0 {
			text = text[:i]
		}
		if f := strings.Fields(text); len(f) > 0 {
			return f, nil
		}
	}

	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	return nil, io.EOF
}

// event parses and checks a transition line.
func (c *Reader) event(fields []string) (port.Event, error) {
	if len(fields) != 2 {
		return port.Event{}, c.errorf("want <sample> <level>, got %q", strings.Join(fields, " "))
	}

	sample, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return port.Event{}, c.errorf("invalid sample %q", fields[0])
	}
	l, err := c.level(fields[1])
	if err != nil {
		return port.Event{}, err
	}

	previous := c.initial
	if c.hasLast {
		if sample <= c.last.Sample {
			return port.Event{}, c.errorf("sample %d is not after sample %d", sample, c.last.Sample)
		}
		previous = c.last.Level()
	}
	if l == previous {
		return port.Event{}, c.errorf("level %v at sample %d does not change the line", l, sample)
	}

	evt := port.Event{Sample: sample, Type: l.Edge()}
	c.last, c.hasLast = evt, true
	return evt, nil
}

func (c *Reader) level(s string) (port.Level, error) {
	switch s {
	case "0":
		return port.Low, nil
	case "1":
		return port.High, nil
	default:
		return port.Low, c.errorf("invalid level %q (0|1)", s)
	}
}

func (c *Reader) errorf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, c.line, fmt.Sprintf(format, a...))
}

// Writer writes a capture.
type Writer struct {
	w *bufio.Writer
}

// NewWriter writes the capture header.
// A sampleRate of 0 is omitted.
func NewWriter(w io.Writer, sampleRate uint32, initial port.Level) (*Writer, error) {
	c := &Writer{w: bufio.NewWriter(w)}

	if sampleRate > 0 {
		if _, err := fmt.Fprintf(c.w, "%s %d\n", directiveRate, sampleRate); err != nil {
			return nil, err
		}
	}
	if _, err := fmt.Fprintf(c.w, "%s %d\n", directiveInitial, initial); err != nil {
		return nil, err
	}
	return c, nil
}

// Comment writes a comment line.
func (c *Writer) Comment(text string) error {
	_, err := fmt.Fprintf(c.w, "%s %s\n", commentPrefix, text)
	return err
}

// Write writes a transition.
func (c *Writer) Write(evt port.Event) error {
	_, err := fmt.Fprintf(c.w, "%d %d\n", evt.Sample, evt.Level())
	return err
}

// Flush writes buffered data to the underlying writer.
func (c *Writer) Flush() error {
	return c.w.Flush()
}

// WriteAll writes a complete capture.
func WriteAll(w io.Writer, sampleRate uint32, initial port.Level, events []port.Event) error {
	c, err := NewWriter(w, sampleRate, initial)
	if err != nil {
		return err
	}
	for _, evt := range events {
		if err = c.Write(evt); err != nil {
			return err
		}
	}
	return c.Flush()
}
