// Package export renders decoded frames as labels, as text table and as hex dump.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
)

const (
	// dumpLine is the count of bytes per hex dump line.
	dumpLine = 16
	// dumpGroup is the count of bytes between two spaces of a hex dump line.
	dumpGroup = 4
	// dataBits is the width of a data value.
	dataBits = 8
)

var ErrInvalidBase = errors.New("invalid display base")

// Base is the number format of data values.
type Base int

const (
	Hex Base = iota
	Decimal
	Binary
	ASCII
)

// ParseBase converts hex, dec, bin or ascii to a Base.
func ParseBase(s string) (Base, error) {
	switch strings.ToLower(s) {
	case "hex", "":
		return Hex, nil
	case "dec", "decimal":
		return Decimal, nil
	case "bin", "binary":
		return Binary, nil
	case "ascii":
		return ASCII, nil
	default:
		return Hex, fmt.Errorf("%w: %q (hex|dec|bin|ascii)", ErrInvalidBase, s)
	}
}

func (b Base) String() string {
	switch b {
	case Decimal:
		return "dec"
	case Binary:
		return "bin"
	case ASCII:
		return "ascii"
	default:
		return "hex"
	}
}

// Number formats v with width bits in base b.
func Number(v uint64, b Base, bits int) string {
	switch b {
	case Decimal:
		return strconv.FormatUint(v, 10)
	case Binary:
		return fmt.Sprintf("0b%0*b", bits, v)
	case ASCII:
		if v >= 0x20 && v < 0x7f {
			return fmt.Sprintf("'%c'", rune(v))
		}
		return fmt.Sprintf("0x%02X", v)
	default:
		return fmt.Sprintf("0x%0*X", (bits+3)/4, v)
	}
}

// Labels returns the bubble texts of a frame, from the shortest to the longest.
func Labels(f auxbus.Frame, b Base) []string {
	switch s := f.Symbol.(type) {
	case auxbus.Sync:
		syncs := fmt.Sprintf("%d SYNCs", s.Bits)
		return []string{"SYNC", syncs, fmt.Sprintf("%s, %d bps", syncs, s.BitRate)}
	case auxbus.Start:
		n := strconv.FormatUint(s.Packet, 10)
		return []string{"S", "S #" + n, "START", "START #" + n}
	case auxbus.Data:
		return []string{Number(uint64(s.Value), b, dataBits)}
	case auxbus.Stop:
		return []string{"P", "STOP"}
	default:
		return nil
	}
}

// Tabular returns the table text of a frame, the longest label.
func Tabular(f auxbus.Frame, b Base) string {
	l := Labels(f, b)
	if len(l) == 0 {
		return ""
	}
	return l[len(l)-1]
}

// Time formats a sample number as seconds.
func Time(sample uint64, sampleRate uint32) string {
	if sampleRate == 0 {
		return strconv.FormatUint(sample, 10)
	}
	return strconv.FormatFloat(float64(sample)/float64(sampleRate), 'f', 9, 64)
}

// Text writes the frames as semicolon separated table with the start time of every frame.
func Text(w io.Writer, frames []auxbus.Frame, sampleRate uint32, b Base) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, "Time [s]; Data"); err != nil {
		return err
	}
	for _, f := range frames {
		if _, err := fmt.Fprintf(bw, "%s; %s\n", Time(f.Start, sampleRate), Tabular(f, b)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Dump writes the data bytes of all frames as hex dump.
//  00000000-> 01020304 05060708 090A0B0C 0D0E0F10
// The address counts the data bytes across packets.
func Dump(w io.Writer, frames []auxbus.Frame) error {
	bw := bufio.NewWriter(w)

	addr := 0
	for _, f := range frames {
		d, ok := f.Symbol.(auxbus.Data)
		if !ok {
			continue
		}

		switch {
		case addr%dumpLine == 0:
			fmt.Fprintf(bw, "%08X-> ", addr)
		case addr%dumpGroup == 0:
			bw.WriteByte(' ')
		}
		fmt.Fprintf(bw, "%02X", d.Value)

		if addr%dumpLine == dumpLine-1 {
			bw.WriteByte('\n')
		}
		addr++
	}

	if addr%dumpLine != 0 {
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteLabels writes one line per frame: sample range, kind and all labels separated by |.
func WriteLabels(w io.Writer, frames []auxbus.Frame, b Base) error {
	bw := bufio.NewWriter(w)
	for _, f := range frames {
		if _, err := fmt.Fprintf(bw, "%d..%d %s %s\n", f.Start, f.End, f.Kind(), strings.Join(Labels(f, b), " | ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}
