// Package auxbus is the decoder of the DisplayPort AUX channel framing.
//  A packet starts with a preamble of manchester coded zeros (sync), followed by the START symbol,
//  the data bytes (eight bits, MSB first) and the STOP symbol.
//  START and STOP are two bit periods high followed by two bit periods low, which violates the
//  manchester code and makes them distinguishable from data bits.
package auxbus

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/manchester"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
	"github.com/womat/debug"
)

const (
	// DefaultSyncBits is the minimum count of sync bits in front of a START symbol.
	DefaultSyncBits = 16
	// MaxBitRate is the highest supported bit rate in bits per second.
	MaxBitRate = 100000000

	// byteBits is the width of a data byte, independent of any display setting.
	byteBits = 8
	// symbolHalfBits is the length of one half of a START/STOP symbol in half bit periods.
	symbolHalfBits = 4
)

var (
	ErrInvalidBitRate   = errors.New("invalid bit rate")
	ErrSampleRateTooLow = errors.New("sample rate too low")
)

// State is the state of the decoding process.
type State int

const (
	// Unsynchronized is the process state to scan for a preamble and a START symbol.
	Unsynchronized State = iota
	// Synchronized is the process state to decode data bytes until the STOP symbol.
	Synchronized
)

func (s State) String() string {
	if s == Synchronized {
		return "synchronized"
	}
	return "unsynchronized"
}

// Config holds the decoder settings. They are read once when the decoder is created.
type Config struct {
	// BitRate is the nominal bit rate in bits per second.
	BitRate uint32
	// SampleRate is the sample rate of the capture in Hz.
	SampleRate uint32
	// Inverted swaps the polarity: a high level after the mid bit edge is a one.
	Inverted bool
	// Tolerance selects the width of the timing windows.
	Tolerance manchester.Tolerance
	// SyncBits is the minimum count of sync bits, 0 selects DefaultSyncBits.
	SyncBits uint32
}

// Validate checks the bit rate range and the minimum sample rate.
func (c Config) Validate() error {
	if c.BitRate < 1 || c.BitRate > MaxBitRate {
		return fmt.Errorf("%w: %d bit/s (1..%d)", ErrInvalidBitRate, c.BitRate, MaxBitRate)
	}
	if required := manchester.MinSampleRate(c.BitRate); uint64(c.SampleRate) < required {
		return fmt.Errorf("%w: %d Hz, at least %d Hz required", ErrSampleRateTooLow, c.SampleRate, required)
	}
	return nil
}

func (c Config) syncBits() uint64 {
	if c.SyncBits == 0 {
		return DefaultSyncBits
	}
	return uint64(c.SyncBits)
}

// step is the outcome of one decoding step, interpreted by Run.
type step int

const (
	// stepContinue keeps the current state.
	stepContinue step = iota
	// stepSynced enters the synchronized state after a START symbol.
	stepSynced
	// stepByte stays synchronized after a data byte.
	stepByte
	// stepStop returns to the preamble scan after a STOP symbol.
	stepStop
	// stepResync returns to the preamble scan after a timing error.
	stepResync
)

// Decoder decodes the transitions of a Stream to frames and markers published to a Sink.
type Decoder struct {
	config Config
	timing manchester.Timing
	stream Stream
	sink   Sink

	// state contains the current decoding state (unsynchronized/synchronized).
	state State
	// syncCount is the count of consecutive half bit intervals of the preamble.
	syncCount uint64
	// syncStart is the sample of the first preamble edge.
	syncStart uint64
	// frameEnd is the last sample of the previous frame of the current packet.
	frameEnd uint64
	// packet is the sequence number of the last START symbol.
	packet uint64
}

// New initials a new Decoder.
func New(config Config, stream Stream, sink Sink) (*Decoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Decoder{
		config: config,
		timing: manchester.Derive(config.BitRate, config.SampleRate, config.Tolerance),
		stream: stream,
		sink:   sink,
		state:  Unsynchronized,
	}, nil
}

// Timing returns the bit clock used by the decoder.
func (d *Decoder) Timing() manchester.Timing {
	return d.timing
}

// State returns the decoding state. It must not be called while Run is active.
func (d *Decoder) State() State {
	return d.state
}

// Run decodes the stream until ctx is cancelled or the capture ends.
// It returns nil at the end of the capture and the context error on cancellation.
func (d *Decoder) Run(ctx context.Context) error {
	// move to the first edge
	if err := d.stream.Advance(ctx); err != nil {
		return exit(err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var s step
		var err error

		switch d.state {
		case Synchronized:
			s, err = d.decodeByte(ctx)
		default:
			s, err = d.scan(ctx)
		}
		if err != nil {
			return exit(err)
		}

		d.apply(s)
	}
}

func exit(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// apply performs the state transition of a step.
func (d *Decoder) apply(s step) {
	switch s {
	case stepSynced:
		d.state = Synchronized
		d.syncCount = 0
	case stepStop, stepResync:
		d.state = Unsynchronized
		d.syncCount = 0
	}
}

// scan handles one preamble interval and recognizes the START symbol.
func (d *Decoder) scan(ctx context.Context) (step, error) {
	edge := d.stream.Sample()

	i, err := d.interval(ctx)
	if err != nil {
		return stepContinue, err
	}

	switch {
	case i == manchester.Half:
		if d.syncCount == 0 {
			d.syncStart = edge
		}
		d.syncCount++
		return stepContinue, nil

	case i == manchester.Long5 && d.syncCount >= 2*d.config.syncBits():
		// the first half of START must end with the line going to its second half level
		if d.logical(d.stream.Level()) != port.Low {
			d.syncCount = 0
			return stepContinue, nil
		}
		return d.start(ctx, edge)

	default:
		d.syncCount = 0
		return stepContinue, nil
	}
}

// start checks the second half of the START symbol, which is joined with the first half of the first data bit.
// edge is the last preamble edge.
func (d *Decoder) start(ctx context.Context, edge uint64) (step, error) {
	syncEnd := edge + d.timing.Samples(1)

	i, err := d.interval(ctx)
	if err != nil {
		return stepContinue, err
	}

	var startEnd uint64
	switch i {
	case manchester.Long5:
		// first data bit is a zero, the stream is at its mid bit edge
		startEnd = d.stream.Sample() - d.timing.Samples(1)
	case manchester.Long4:
		// first data bit is a one, the stream is at its leading edge
		startEnd = d.stream.Sample()
	default:
		d.syncCount = 0
		return stepContinue, nil
	}

	d.emit(Frame{
		Start:  d.syncStart,
		End:    syncEnd,
		Symbol: Sync{Bits: d.syncCount / 2, BitRate: d.measuredBitRate(syncEnd)},
	})

	d.packet++
	d.sink.AddMarker(Marker{Sample: startEnd, Kind: MarkerStart})
	d.emit(Frame{Start: syncEnd + 1, End: startEnd, Symbol: Start{Packet: d.packet}})
	d.frameEnd = startEnd

	if i == manchester.Long4 {
		// skip the first half of the leading one
		if i, err = d.interval(ctx); err != nil {
			return stepResync, err
		}
		if i != manchester.Half {
			d.errorDot()
			return stepResync, nil
		}
	}

	return stepSynced, nil
}

// measuredBitRate calculates the bit rate of the preamble ending at syncEnd.
func (d *Decoder) measuredBitRate(syncEnd uint64) uint64 {
	elapsed := syncEnd - d.syncStart
	if elapsed <= d.timing.Samples(1) {
		return 0
	}
	return uint64(d.config.SampleRate) * (d.syncCount / 2) / (elapsed - d.timing.Samples(1))
}

// decodeByte collects eight data bits and checks the following bit boundary.
// The stream is at the mid bit edge of the first bit.
func (d *Decoder) decodeByte(ctx context.Context) (step, error) {
	start := d.frameEnd + 1

	var value byte
	for bit := 0; bit < byteBits; bit++ {
		at := d.stream.Sample()

		value <<= 1
		if d.logical(d.stream.Level()) == port.Low {
			value |= 1
			d.sink.AddMarker(Marker{Sample: at, Kind: MarkerOne})
		} else {
			d.sink.AddMarker(Marker{Sample: at, Kind: MarkerZero})
		}

		// the boundary after the last bit is checked by boundary()
		if bit == byteBits-1 {
			break
		}

		ok, err := d.nextBit(ctx)
		if err != nil {
			return stepResync, err
		}
		if !ok {
			return stepResync, nil
		}
	}

	d.frameEnd = d.stream.Sample() + d.timing.Samples(1)
	d.emit(Frame{Start: start, End: d.frameEnd, Symbol: Data{Value: value}})

	return d.boundary(ctx)
}

// nextBit moves from a mid bit edge to the mid bit edge of the next bit.
//  2T: the bit value changes, there is no edge at the bit boundary.
//  1T+1T: the bit value repeats, the line toggles at the bit boundary.
func (d *Decoder) nextBit(ctx context.Context) (bool, error) {
	i, err := d.interval(ctx)
	if err != nil {
		return false, err
	}

	switch i {
	case manchester.Full:
		return true, nil
	case manchester.Half:
		if i, err = d.interval(ctx); err != nil {
			return false, err
		}
		if i == manchester.Half {
			return true, nil
		}
	}

	d.errorDot()
	return false, nil
}

// boundary checks the interval after the last bit of a byte: either the next byte follows or the STOP symbol.
func (d *Decoder) boundary(ctx context.Context) (step, error) {
	i, err := d.interval(ctx)
	if err != nil {
		return stepResync, err
	}

	switch i {
	case manchester.Full:
		return stepByte, nil
	case manchester.Long5:
		// last bit was a zero, its second half is joined with the first half of STOP
		return d.stop(ctx)
	case manchester.Half:
		if i, err = d.interval(ctx); err != nil {
			return stepResync, err
		}
		switch i {
		case manchester.Half:
			return stepByte, nil
		case manchester.Long4:
			return d.stop(ctx)
		}
	}

	d.errorDot()
	return stepResync, nil
}

// stop verifies the second half of a STOP symbol: the line must not toggle for two bit periods.
// The stream is at the edge between both halves and is not advanced.
func (d *Decoder) stop(ctx context.Context) (step, error) {
	at := d.stream.Sample()

	quiet := d.timing.Samples(symbolHalfBits)
	if tol := uint64(d.timing.Tolerance); quiet > tol {
		quiet -= tol
	}

	crossed, err := d.stream.WouldCross(ctx, quiet)
	if err != nil {
		return stepResync, err
	}
	if crossed {
		d.errorDot()
		return stepResync, nil
	}

	start := d.frameEnd + 1
	d.sink.AddMarker(Marker{Sample: start, Kind: MarkerStop})
	d.emit(Frame{Start: start, End: at + d.timing.Samples(symbolHalfBits), Symbol: Stop{}})

	debug.DebugLog.Printf("packet %d complete at sample %d", d.packet, at)
	return stepStop, nil
}

// interval advances to the next edge and classifies the distance from the current one.
func (d *Decoder) interval(ctx context.Context) (manchester.Interval, error) {
	from := d.stream.Sample()
	if err := d.stream.Advance(ctx); err != nil {
		return manchester.Unclassified, err
	}
	return d.timing.Classify(d.stream.Sample() - from), nil
}

// logical converts a line level to the level of the non-inverted line.
func (d *Decoder) logical(l port.Level) port.Level {
	if d.config.Inverted {
		return l.Invert()
	}
	return l
}

// emit publishes a frame with all markers added before.
func (d *Decoder) emit(f Frame) {
	d.sink.AddFrame(f)
	d.sink.Commit()
	d.sink.ReportProgress(f.End)
}

// errorDot marks an invalid interval at the current edge and commits the markers of the aborted packet.
func (d *Decoder) errorDot() {
	at := d.stream.Sample()
	d.sink.AddMarker(Marker{Sample: at, Kind: MarkerErrorDot})
	d.sink.Commit()
	debug.TraceLog.Printf("invalid interval at sample %d (%s), wait for sync", at, d.state)
}
