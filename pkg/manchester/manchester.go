// Package manchester holds the bit clock model of a manchester coded line:
// the half bit period in samples, the tolerance window and the classification
// of the distance between two edges.
// https://en.wikipedia.org/wiki/Manchester_code

// https://www.microchip.com/content/dam/mchp/documents/OTH/ApplicationNotes/ApplicationNotes/Atmel-9164-Manchester-Coding-Basics_Application-Note.pdf

package manchester

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// minTolerance is the lowest tolerance window in samples.
	minTolerance = 3
	// oversampling is the minimum ratio of sample rate to bit rate.
	oversampling = 8
	// epsilon absorbs float representation errors of the sample calculation.
	epsilon = 1e-9
)

var ErrInvalidTolerance = errors.New("invalid tolerance")

// Tolerance selects the width of the timing window around each interval class.
type Tolerance int

const (
	// Tol25 allows +-50% of a half bit period (25% of a bit period).
	Tol25 Tolerance = iota
	// Tol5 allows +-10% of a half bit period, requires more than 10x over sampling.
	Tol5
	// Tol05 allows +-1% of a half bit period, requires more than 200x over sampling.
	Tol05
)

// ParseTolerance converts "25%", "5%" or "0.5%" (with or without percent sign) to a Tolerance.
func ParseTolerance(s string) (Tolerance, error) {
	switch strings.TrimSuffix(strings.TrimSpace(s), "%") {
	case "25", "":
		return Tol25, nil
	case "5":
		return Tol5, nil
	case "0.5", ".5":
		return Tol05, nil
	default:
		return Tol25, fmt.Errorf("%w: %q (25%%|5%%|0.5%%)", ErrInvalidTolerance, s)
	}
}

func (t Tolerance) String() string {
	switch t {
	case Tol5:
		return "5%"
	case Tol05:
		return "0.5%"
	default:
		return "25%"
	}
}

// divisor returns the fraction of the half bit period used as tolerance.
func (t Tolerance) divisor() uint32 {
	switch t {
	case Tol5:
		return 10
	case Tol05:
		return 100
	default:
		return 2
	}
}

// Interval is the class of a measured distance between two edges.
type Interval int

const (
	// Unclassified matches no window.
	Unclassified Interval = iota
	// Half is one half bit period (1T).
	Half
	// Full is one bit period (2T).
	Full
	// Long4 is two bit periods (4T), the START/STOP half symbol.
	Long4
	// Long5 is 2.5 bit periods (5T), a START/STOP half symbol joined with a half bit.
	Long5
)

// multiple returns the number of half bit periods of the interval class.
func (i Interval) multiple() uint64 {
	switch i {
	case Half:
		return 1
	case Full:
		return 2
	case Long4:
		return 4
	case Long5:
		return 5
	default:
		return 0
	}
}

func (i Interval) String() string {
	switch i {
	case Half:
		return "1T"
	case Full:
		return "2T"
	case Long4:
		return "4T"
	case Long5:
		return "5T"
	default:
		return "invalid"
	}
}

// classes is the fixed priority order of Classify: on overlapping windows the smaller class wins.
var classes = [...]Interval{Half, Full, Long4, Long5}

// Timing holds the bit clock of the line in samples.
type Timing struct {
	// HalfBit is the count of samples of a half bit period (T).
	HalfBit uint32
	// Tolerance is the allowed deviation of an interval in samples.
	Tolerance uint32
}

// Derive calculates the half bit period and the tolerance window.
// The half period is calculated in microseconds first and truncated to samples.
// bitRate must be greater than zero.
func Derive(bitRate, sampleRate uint32, tol Tolerance) Timing {
	halfPeriod := 1.0 / float64(bitRate*2) // seconds
	halfPeriod *= 1e6                      // microseconds

	t := Timing{HalfBit: uint32(math.Floor(float64(sampleRate)*halfPeriod/1e6 + epsilon))}
	t.Tolerance = t.HalfBit / tol.divisor()
	if t.Tolerance < minTolerance {
		t.Tolerance = minTolerance
	}
	return t
}

// MinSampleRate returns the lowest sample rate which resolves half bit periods of bitRate.
func MinSampleRate(bitRate uint32) uint64 {
	return uint64(bitRate) * oversampling
}

// Samples returns n half bit periods in samples.
func (t Timing) Samples(n uint64) uint64 {
	return n * uint64(t.HalfBit)
}

// Within reports whether d lies inside the window of class i (bounds inclusive).
func (t Timing) Within(d uint64, i Interval) bool {
	k := i.multiple()
	if k == 0 {
		return false
	}

	centre := t.Samples(k)
	tol := uint64(t.Tolerance)

	lower := uint64(0)
	if centre > tol {
		lower = centre - tol
	}
	return d >= lower && d <= centre+tol
}

// Classify returns the class of distance d.
func (t Timing) Classify(d uint64) Interval {
	for _, i := range classes {
		if t.Within(d, i) {
			return i
		}
	}
	return Unclassified
}

func (t Timing) String() string {
	return fmt.Sprintf("T=%d samples, tolerance=%d samples", t.HalfBit, t.Tolerance)
}
