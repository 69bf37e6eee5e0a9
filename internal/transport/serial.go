package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// serialPort adapts a go.bug.st/serial.Port to the TimeoutPort interface.
type serialPort struct {
	serial.Port
}

// OpenSerial opens a real USB serial connection to the sensor. On Linux the
// path is typically /dev/ttyUSB0; on Windows it is a COMx name.
func OpenSerial(path string, mode Mode) (Port, error) {
	serialMode, err := toSerialMode(mode)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid mode: %w", err)
	}

	port, err := serial.Open(path, serialMode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}

	if err := port.SetReadTimeout(mode.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set read timeout: %w", err)
	}

	return &serialPort{Port: port}, nil
}

func (p *serialPort) SetReadTimeout(timeout time.Duration) error {
	return p.Port.SetReadTimeout(timeout)
}

func toSerialMode(mode Mode) (*serial.Mode, error) {
	sm := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
	}

	switch mode.StopBits {
	case OneStopBit:
		sm.StopBits = serial.OneStopBit
	case TwoStopBits:
		sm.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", mode.StopBits)
	}

	switch mode.Parity {
	case NoParity:
		sm.Parity = serial.NoParity
	case OddParity:
		sm.Parity = serial.OddParity
	case EvenParity:
		sm.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity %d", mode.Parity)
	}

	return sm, nil
}
