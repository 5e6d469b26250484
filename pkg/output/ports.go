package output

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Port describes one MIDI output.
type Port struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// ListPorts returns the outputs of the registered driver. A driver must be
// registered by a blank import, e.g. rtmididrv.
func ListPorts() []Port {
	outs := midi.GetOutPorts()
	ports := make([]Port, 0, len(outs))
	for _, out := range outs {
		ports = append(ports, Port{Number: out.Number(), Name: out.String()})
	}
	return ports
}

// OpenPort opens an output by number or by a case-insensitive name fragment
// and returns its send function and a closer.
func OpenPort(name string) (SendFunc, func() error, error) {
	out, err := findPort(name)
	if err != nil {
		return nil, nil, err
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open MIDI output %q: %w", out.String(), err)
	}
	return send, out.Close, nil
}

func findPort(name string) (drivers.Out, error) {
	if n, err := strconv.Atoi(name); err == nil {
		out, err := midi.OutPort(n)
		if err != nil {
			return nil, fmt.Errorf("no MIDI output number %d: %w", n, err)
		}
		return out, nil
	}

	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI outputs available")
	}
	lower := strings.ToLower(name)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out, nil
		}
	}
	return midi.FindOutPort(name)
}
