// Package auxsim generates the transitions of DisplayPort AUX packets.
// It is the encoder counterpart of package auxbus and is used to produce test captures.
package auxsim

import (
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/manchester"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
)

const (
	// DefaultPreambleBits is the count of zeros sent in front of the START symbol.
	DefaultPreambleBits = 32
	// IdleHalfBits is the pause in front of and after every packet (eight bit periods).
	IdleHalfBits = 16
	// symbolHalfBits is the length of one half of a START/STOP symbol.
	symbolHalfBits = 4
)

// Config holds the line settings of the generator.
type Config struct {
	BitRate    uint32
	SampleRate uint32
	Inverted   bool
	// PreambleBits is the count of sync zeros per packet, 0 selects DefaultPreambleBits.
	PreambleBits int
}

// Generate encodes packets with an idle line in front of every packet.
// It returns the line level before the first transition and the transitions.
func Generate(config Config, packets ...[]byte) (port.Level, []port.Event) {
	t := manchester.Derive(config.BitRate, config.SampleRate, manchester.Tol25)

	preamble := config.PreambleBits
	if preamble == 0 {
		preamble = DefaultPreambleBits
	}

	e := NewEncoder(uint64(t.HalfBit), config.Inverted)
	e.Idle(IdleHalfBits)
	for _, p := range packets {
		e.Packet(preamble, p)
	}
	return e.Initial(), e.Events()
}

// Counter returns n payloads of size bytes with values counting up from first, wrapping at 0xff.
func Counter(n, size int, first byte) [][]byte {
	packets := make([][]byte, n)
	v := first
	for i := range packets {
		packets[i] = make([]byte, size)
		for j := range packets[i] {
			packets[i][j] = v
			v++
		}
	}
	return packets
}

// Encoder writes manchester coded bits and symbols as line transitions.
// Levels are handled on the non-inverted line and mapped to the physical line on output.
type Encoder struct {
	halfBit  uint64
	inverted bool
	// level is the current level of the non-inverted line.
	level  port.Level
	sample uint64
	events []port.Event
}

// NewEncoder creates an encoder with halfBit samples per half bit period.
// The non-inverted line starts low.
func NewEncoder(halfBit uint64, inverted bool) *Encoder {
	return &Encoder{halfBit: halfBit, inverted: inverted, level: port.Low}
}

// Initial returns the physical line level before the first transition.
func (e *Encoder) Initial() port.Level {
	return e.physical(port.Low)
}

// Events returns the transitions written so far.
func (e *Encoder) Events() []port.Event {
	return e.events
}

// Sample returns the current sample position.
func (e *Encoder) Sample() uint64 {
	return e.sample
}

// Idle holds the line for n half bit periods.
func (e *Encoder) Idle(n uint64) {
	e.sample += n * e.halfBit
}

// Bit writes one data bit: a one is high followed by low, a zero is low followed by high.
func (e *Encoder) Bit(one bool) {
	if one {
		e.transitionIfNeeded(port.High)
	} else {
		e.transitionIfNeeded(port.Low)
	}
	e.Idle(1)
	e.transition()
	e.Idle(1)
}

// Byte writes eight data bits, MSB first.
func (e *Encoder) Byte(b byte) {
	for i := 7; i >= 0; i-- {
		e.Bit((b>>uint(i))&1 == 1)
	}
}

// Symbol writes a START or STOP symbol: two bit periods high, two bit periods low.
func (e *Encoder) Symbol() {
	e.transitionIfNeeded(port.High)
	e.Idle(symbolHalfBits)
	e.transitionIfNeeded(port.Low)
	e.Idle(symbolHalfBits)
}

// Packet writes a complete packet followed by an idle line.
func (e *Encoder) Packet(preambleBits int, payload []byte) {
	for i := 0; i < preambleBits; i++ {
		e.Bit(false)
	}
	e.Symbol()
	for _, b := range payload {
		e.Byte(b)
	}
	e.Symbol()
	e.Idle(IdleHalfBits)
}

func (e *Encoder) transition() {
	e.level = e.level.Invert()
	e.events = append(e.events, port.Event{Sample: e.sample, Type: e.physical(e.level).Edge()})
}

func (e *Encoder) transitionIfNeeded(l port.Level) {
	if e.level != l {
		e.transition()
	}
}

func (e *Encoder) physical(l port.Level) port.Level {
	if e.inverted {
		return l.Invert()
	}
	return l
}
