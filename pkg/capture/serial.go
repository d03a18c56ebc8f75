package capture

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial is a capture streamed by a serial attached capture adapter.
type Serial struct {
	*Reader
	port serial.Port
}

// OpenSerial opens the serial port and reads the capture header sent by the adapter.
func OpenSerial(name string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	r, err := NewReader(p)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to read capture header from %s: %w", name, err)
	}

	return &Serial{Reader: r, port: p}, nil
}

// Close closes the port. A pending Next returns with an error.
func (s *Serial) Close() error {
	return s.port.Close()
}

// Ports lists the serial ports of the host.
func Ports() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
