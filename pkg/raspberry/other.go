//go:build !linux

package raspberry

func openChipLine(int, string) (Line, error) {
	return nil, ErrUnsupported
}

func openMemLine(int, string) (Line, error) {
	return nil, ErrUnsupported
}
