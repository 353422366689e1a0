package serialio

import (
	"fmt"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortConfig carries the opaque transport parameters. Parity is one of
// N/E/O/M/S, StopBits one of "1", "1.5", "2".
type PortConfig struct {
	Name       string
	Baud       int
	Parity     string
	DataBits   int
	StopBits   string
	LineEnding []byte
}

var parities = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
	"M": serial.MarkParity,
	"S": serial.SpaceParity,
}

var stopBits = map[string]serial.StopBits{
	"1":   serial.OneStopBit,
	"1.5": serial.OnePointFiveStopBits,
	"2":   serial.TwoStopBits,
}

// Open opens the serial port described by cfg and returns a started
// Reader.
func Open(cfg PortConfig) (*Reader, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if p, ok := parities[cfg.Parity]; ok {
		mode.Parity = p
	} else if cfg.Parity != "" {
		return nil, fmt.Errorf("unknown parity %q", cfg.Parity)
	}
	if s, ok := stopBits[cfg.StopBits]; ok {
		mode.StopBits = s
	} else if cfg.StopBits != "" {
		return nil, fmt.Errorf("unknown stop bits %q", cfg.StopBits)
	}

	port, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}
	r := NewReader(port, cfg.LineEnding)
	r.Start()
	return r, nil
}

// PortInfo describes one available serial port.
type PortInfo struct {
	Name        string
	Description string
}

// ListPorts enumerates the serial ports on this machine, sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	var ports []PortInfo
	for _, d := range details {
		desc := d.Product
		if desc == "" {
			desc = d.Name
		}
		ports = append(ports, PortInfo{Name: d.Name, Description: desc})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
