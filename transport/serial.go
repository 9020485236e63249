package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Default serial settings.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 50 * time.Millisecond
)

// SerialConfig selects and configures a serial port.
type SerialConfig struct {
	// Port is the device name, e.g. /dev/ttyUSB0 or COM3
	Port string

	// BaudRate defaults to DefaultBaudRate
	BaudRate int

	// ReadTimeout bounds each read so closing the port is noticed promptly
	ReadTimeout time.Duration
}

// OpenSerial opens a port in 8N1 mode.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial port name cannot be empty")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
