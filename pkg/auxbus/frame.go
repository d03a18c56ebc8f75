package auxbus

import (
	"context"
	"encoding/json"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/port"
)

// Kind is the type of a decoded frame.
type Kind int

const (
	KindSync Kind = iota
	KindStart
	KindData
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindStart:
		return "start"
	case KindData:
		return "data"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Symbol is the payload of a frame. It is one of Sync, Start, Data or Stop.
type Symbol interface {
	Kind() Kind
}

// Sync is the preamble of a packet.
type Sync struct {
	// Bits is the count of sync bits received.
	Bits uint64
	// BitRate is the bit rate in bits per second measured over the preamble.
	BitRate uint64
}

// Start is the START symbol of a packet.
type Start struct {
	// Packet is the sequence number of the packet, starting at 1.
	Packet uint64
}

// Data is a received byte.
type Data struct {
	Value byte
}

// Stop is the STOP symbol of a packet.
type Stop struct{}

func (Sync) Kind() Kind  { return KindSync }
func (Start) Kind() Kind { return KindStart }
func (Data) Kind() Kind  { return KindData }
func (Stop) Kind() Kind  { return KindStop }

// Frame is a decoded symbol and its sample range.
type Frame struct {
	// Start is the first sample of the frame (inclusive).
	Start uint64
	// End is the last sample of the frame (inclusive).
	End    uint64
	Symbol Symbol
	Flags  uint32
}

// Kind returns the kind of the frame symbol.
func (f Frame) Kind() Kind {
	return f.Symbol.Kind()
}

// Primary returns the main value of the frame:
// the sync bit count, the packet number or the data byte.
func (f Frame) Primary() uint64 {
	switch s := f.Symbol.(type) {
	case Sync:
		return s.Bits
	case Start:
		return s.Packet
	case Data:
		return uint64(s.Value)
	default:
		return 0
	}
}

// Secondary returns the measured bit rate of a sync frame, 0 otherwise.
func (f Frame) Secondary() uint64 {
	if s, ok := f.Symbol.(Sync); ok {
		return s.BitRate
	}
	return 0
}

// MarshalJSON renders the frame in its flat form.
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start     uint64 `json:"start"`
		End       uint64 `json:"end"`
		Kind      string `json:"kind"`
		Primary   uint64 `json:"primary"`
		Secondary uint64 `json:"secondary,omitempty"`
		Flags     uint32 `json:"flags,omitempty"`
	}{f.Start, f.End, f.Kind().String(), f.Primary(), f.Secondary(), f.Flags})
}

// MarkerKind is the type of a marker.
type MarkerKind int

const (
	MarkerOne MarkerKind = iota
	MarkerZero
	MarkerStart
	MarkerStop
	MarkerErrorDot
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerOne:
		return "one"
	case MarkerZero:
		return "zero"
	case MarkerStart:
		return "start"
	case MarkerStop:
		return "stop"
	case MarkerErrorDot:
		return "error"
	default:
		return "unknown"
	}
}

// Marker annotates a single sample.
type Marker struct {
	Sample uint64
	Kind   MarkerKind
}

// MarshalJSON renders the marker kind by name.
func (m Marker) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sample uint64 `json:"sample"`
		Kind   string `json:"kind"`
	}{m.Sample, m.Kind.String()})
}

// Sink receives the decoded frames and markers.
// Frames and markers added since the last Commit become visible with the next Commit.
type Sink interface {
	AddFrame(Frame)
	AddMarker(Marker)
	Commit()
	// ReportProgress reports the last sample which is decoded completely.
	ReportProgress(sample uint64)
}

// Stream is the forward-only cursor over the transitions of the line.
type Stream interface {
	// Sample returns the sample number of the current transition.
	Sample() uint64
	// Level returns the line level after the current transition.
	Level() port.Level
	// Advance moves to the next transition. It blocks until a transition is available.
	Advance(ctx context.Context) error
	// WouldCross reports whether a transition lies within n samples ahead without consuming it.
	WouldCross(ctx context.Context, n uint64) (bool, error)
}
