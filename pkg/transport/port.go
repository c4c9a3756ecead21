package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Serial defaults for FPGA boards with an FTDI bridge.
const (
	// DefaultDevice is the device most boards enumerate as.
	DefaultDevice = "/dev/ttyUSB0"

	// DefaultBaud is the board UART rate.
	DefaultBaud = 115200
)

// Port is a byte stream to a peripheral board. Implementations must
// unblock pending Reads when Close is called.
type Port interface {
	io.ReadWriteCloser
}

// SerialPort is a Port backed by a physical serial device.
type SerialPort struct {
	serial.Port
	device string
}

// OpenSerial opens the serial device at the given baud rate with the
// 8N1 settings the board UART expects. Empty device and zero baud fall
// back to the defaults. Stale bytes in the input buffer are dropped so
// the first read starts on a packet boundary.
func OpenSerial(device string, baud int) (*SerialPort, error) {
	if device == "" {
		device = DefaultDevice
	}
	if baud == 0 {
		baud = DefaultBaud
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", device, err)
	}

	return &SerialPort{Port: port, device: device}, nil
}

// Device returns the device path the port was opened on.
func (p *SerialPort) Device() string {
	return p.device
}
