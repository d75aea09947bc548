package devices

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// MIDIPort represents a MIDI port with its direction
type MIDIPort struct {
	Device
	IsInput  bool `json:"isInput"`
	IsOutput bool `json:"isOutput"`
}

// MIDIPorts represents a slice of MIDIPort with filter methods
type MIDIPorts []MIDIPort

// Inputs returns only ports that can receive MIDI
func (ports MIDIPorts) Inputs() MIDIPorts {
	var filtered MIDIPorts
	for _, p := range ports {
		if p.IsInput {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Outputs returns only ports that can send MIDI
func (ports MIDIPorts) Outputs() MIDIPorts {
	var filtered MIDIPorts
	for _, p := range ports {
		if p.IsOutput {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// ByName returns ports whose name contains pattern (case-insensitive)
func (ports MIDIPorts) ByName(pattern string) MIDIPorts {
	var filtered MIDIPorts
	for _, p := range ports {
		if strings.Contains(strings.ToUpper(p.Name), strings.ToUpper(pattern)) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// ErrNoMIDIDriver is returned by GetMIDI when no gomidi driver is registered.
// Binaries register one by importing a driver package such as rtmididrv.
var ErrNoMIDIDriver = errors.New("no MIDI driver registered")

// MIDIDriverName returns the name of the registered gomidi driver, or "".
func MIDIDriverName() string {
	if drv := drivers.Get(); drv != nil {
		return drv.String()
	}
	return ""
}

// GetMIDI lists the ports of the registered gomidi driver.
func GetMIDI() (MIDIPorts, error) {
	drv := drivers.Get()
	if drv == nil {
		return nil, ErrNoMIDIDriver
	}
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midi in ports of %s: %w", drv, err)
	}
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("midi out ports of %s: %w", drv, err)
	}

	var ports MIDIPorts
	for _, in := range midi.InPorts(ins) {
		ports = append(ports, MIDIPort{
			Device:  Device{Name: in.String(), UID: portUID("in", in.Number()), IsOnline: true},
			IsInput: true,
		})
	}
	for _, out := range midi.OutPorts(outs) {
		ports = append(ports, MIDIPort{
			Device:   Device{Name: out.String(), UID: portUID("out", out.Number()), IsOnline: true},
			IsOutput: true,
		})
	}
	return ports, nil
}

// MIDIPortNames returns the input and output port names of the registered
// gomidi driver. Both are empty when no driver is registered or it fails.
func MIDIPortNames() (ins, outs []string) {
	ports, err := GetMIDI()
	if err != nil {
		return nil, nil
	}
	for _, p := range ports {
		if p.IsInput {
			ins = append(ins, p.Name)
		}
		if p.IsOutput {
			outs = append(outs, p.Name)
		}
	}
	return ins, outs
}

func portUID(dir string, i int) string {
	return "midi:" + dir + ":" + strconv.Itoa(i)
}
