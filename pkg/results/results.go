// Package results keeps the frames and markers published by the decoder.
// Frames and markers are visible to readers after the decoder committed them.
package results

import (
	"sync"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/womat/debug"
)

var _ auxbus.Sink = (*Store)(nil)

// Store is a concurrency safe auxbus.Sink.
type Store struct {
	sync.Mutex
	// limit is the max count of kept frames, 0 keeps everything.
	limit int

	// pendingFrames and pendingMarkers are added but not committed yet.
	pendingFrames  []auxbus.Frame
	pendingMarkers []auxbus.Marker

	frames  []auxbus.Frame
	markers []auxbus.Marker
	// offset is the count of committed frames dropped because of the limit.
	offset   uint64
	progress uint64

	subscribers []func(auxbus.Frame)
}

// New creates a store which keeps at most limit frames (0 is unlimited).
func New(limit int) *Store {
	if limit < 0 {
		limit = 0
	}
	return &Store{limit: limit}
}

// AddFrame adds a frame to the pending frames.
func (s *Store) AddFrame(f auxbus.Frame) {
	s.Lock()
	defer s.Unlock()
	s.pendingFrames = append(s.pendingFrames, f)
}

// AddMarker adds a marker to the pending markers.
func (s *Store) AddMarker(m auxbus.Marker) {
	s.Lock()
	defer s.Unlock()
	s.pendingMarkers = append(s.pendingMarkers, m)
}

// Commit makes the pending frames and markers visible and notifies the subscribers.
func (s *Store) Commit() {
	s.Lock()

	committed := s.pendingFrames
	s.frames = append(s.frames, committed...)
	s.markers = append(s.markers, s.pendingMarkers...)
	s.pendingFrames, s.pendingMarkers = nil, nil
	s.trim()

	subscribers := s.subscribers
	s.Unlock()

	for _, f := range committed {
		debug.TraceLog.Printf("commit %s frame %d..%d", f.Kind(), f.Start, f.End)
		for _, fn := range subscribers {
			fn(f)
		}
	}
}

// trim drops the oldest frames above the limit and the markers in front of the first kept frame.
func (s *Store) trim() {
	if s.limit == 0 || len(s.frames) <= s.limit {
		return
	}

	n := len(s.frames) - s.limit
	s.offset += uint64(n)
	s.frames = s.frames[n:]

	cut := s.frames[0].Start
	i := 0
	for i < len(s.markers) && s.markers[i].Sample < cut {
		i++
	}
	s.markers = s.markers[i:]
}

// ReportProgress saves the last completely decoded sample.
func (s *Store) ReportProgress(sample uint64) {
	s.Lock()
	defer s.Unlock()
	if sample > s.progress {
		s.progress = sample
	}
}

// Subscribe registers fn to be called with every committed frame, in commit order.
// fn is called from the decoder goroutine and must not block.
func (s *Store) Subscribe(fn func(auxbus.Frame)) {
	s.Lock()
	defer s.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Frames returns the committed frames starting at index since and the index of the next frame.
// Indexes count all frames ever committed, including frames dropped by the limit.
func (s *Store) Frames(since uint64) ([]auxbus.Frame, uint64) {
	s.Lock()
	defer s.Unlock()

	next := s.offset + uint64(len(s.frames))
	if since < s.offset {
		since = s.offset
	}
	if since >= next {
		return []auxbus.Frame{}, next
	}

	return append([]auxbus.Frame{}, s.frames[since-s.offset:]...), next
}

// Count returns the count of frames ever committed.
func (s *Store) Count() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.offset + uint64(len(s.frames))
}

// Markers returns the committed markers.
func (s *Store) Markers() []auxbus.Marker {
	s.Lock()
	defer s.Unlock()
	return append([]auxbus.Marker{}, s.markers...)
}

// Progress returns the last completely decoded sample.
func (s *Store) Progress() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.progress
}

// Payloads returns the data bytes of every committed packet, in packet order.
// A packet is complete with its STOP frame; the bytes of an aborted packet are dropped.
func (s *Store) Payloads() [][]byte {
	frames, _ := s.Frames(0)

	var (
		packets [][]byte
		current []byte
		open    bool
	)
	for _, f := range frames {
		switch sym := f.Symbol.(type) {
		case auxbus.Start:
			current, open = []byte{}, true
		case auxbus.Data:
			if open {
				current = append(current, sym.Value)
			}
		case auxbus.Stop:
			if open {
				packets = append(packets, current)
			}
			open = false
		}
	}
	return packets
}
