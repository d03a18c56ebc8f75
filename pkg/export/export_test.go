package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
)

func dataFrames(n int) []auxbus.Frame {
	frames := []auxbus.Frame{{Start: 0, End: 9, Symbol: auxbus.Start{Packet: 1}}}
	for i := 0; i < n; i++ {
		frames = append(frames, auxbus.Frame{Start: uint64(10 + i*16), End: uint64(25 + i*16), Symbol: auxbus.Data{Value: byte(i + 1)}})
	}
	return append(frames, auxbus.Frame{Start: 1000, End: 1031, Symbol: auxbus.Stop{}})
}

func TestNumber(t *testing.T) {
	tests := []struct {
		v    uint64
		base Base
		want string
	}{
		{0x0a, Hex, "0x0A"},
		{0xff, Decimal, "255"},
		{5, Binary, "0b00000101"},
		{'A', ASCII, "'A'"},
		{0x07, ASCII, "0x07"},
	}
	for _, tt := range tests {
		if got := Number(tt.v, tt.base, 8); got != tt.want {
			t.Errorf("Number(%d, %v) = %q, want %q", tt.v, tt.base, got, tt.want)
		}
	}
}

func TestParseBase(t *testing.T) {
	for _, s := range []string{"hex", "dec", "bin", "ascii"} {
		b, err := ParseBase(s)
		if err != nil || b.String() != s {
			t.Errorf("ParseBase(%q) = %v, %v", s, b, err)
		}
	}
	if _, err := ParseBase("oct"); !errors.Is(err, ErrInvalidBase) {
		t.Errorf("ParseBase(oct) error = %v, want ErrInvalidBase", err)
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		frame auxbus.Frame
		want  []string
	}{
		{auxbus.Frame{Symbol: auxbus.Sync{Bits: 31, BitRate: 1000000}}, []string{"SYNC", "31 SYNCs", "31 SYNCs, 1000000 bps"}},
		{auxbus.Frame{Symbol: auxbus.Start{Packet: 7}}, []string{"S", "S #7", "START", "START #7"}},
		{auxbus.Frame{Symbol: auxbus.Data{Value: 0x3c}}, []string{"0x3C"}},
		{auxbus.Frame{Symbol: auxbus.Stop{}}, []string{"P", "STOP"}},
	}
	for _, tt := range tests {
		got := Labels(tt.frame, Hex)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Labels(%v) = %q, want %q", tt.frame.Kind(), got, tt.want)
		}
	}
}

func TestText(t *testing.T) {
	frames := []auxbus.Frame{
		{Start: 16, End: 31, Symbol: auxbus.Sync{Bits: 16, BitRate: 1000000}},
		{Start: 32, End: 63, Symbol: auxbus.Start{Packet: 1}},
		{Start: 64, End: 79, Symbol: auxbus.Data{Value: 200}},
		{Start: 80, End: 111, Symbol: auxbus.Stop{}},
	}

	var buf bytes.Buffer
	if err := Text(&buf, frames, 16000000, Decimal); err != nil {
		t.Fatal(err)
	}

	want := "Time [s]; Data\n" +
		"0.000001000; 16 SYNCs, 1000000 bps\n" +
		"0.000002000; START #1\n" +
		"0.000004000; 200\n" +
		"0.000005000; STOP\n"
	if buf.String() != want {
		t.Errorf("Text() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestDump(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{3, "00000000-> 010203\n"},
		{5, "00000000-> 01020304 05\n"},
		{16, "00000000-> 01020304 05060708 090A0B0C 0D0E0F10\n"},
		{17, "00000000-> 01020304 05060708 090A0B0C 0D0E0F10\n00000010-> 11\n"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		if err := Dump(&buf, dataFrames(tt.n)); err != nil {
			t.Fatal(err)
		}
		if buf.String() != tt.want {
			t.Errorf("Dump() of %d bytes = %q, want %q", tt.n, buf.String(), tt.want)
		}
	}
}

func TestWriteLabels(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLabels(&buf, dataFrames(1), Hex); err != nil {
		t.Fatal(err)
	}

	want := "0..9 start S | S #1 | START | START #1\n" +
		"10..25 data 0x01\n" +
		"1000..1031 stop P | STOP\n"
	if buf.String() != want {
		t.Errorf("WriteLabels() = %q, want %q", buf.String(), want)
	}
}
