// Package spec resolves engine audio options into concrete values.
package spec

import (
	"fmt"
	"strings"
)

// ProcessMode selects how plugins are exposed to the audio driver.
type ProcessMode int

const (
	ProcessSingleClient ProcessMode = iota
	ProcessMultipleClients
	ProcessContinuousRack
	ProcessPatchbay
	ProcessBridge
)

func (m ProcessMode) String() string {
	switch m {
	case ProcessSingleClient:
		return "single-client"
	case ProcessMultipleClients:
		return "multiple-clients"
	case ProcessContinuousRack:
		return "continuous-rack"
	case ProcessPatchbay:
		return "patchbay"
	case ProcessBridge:
		return "bridge"
	default:
		return fmt.Sprintf("process-mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m ProcessMode) Valid() bool { return m >= ProcessSingleClient && m <= ProcessBridge }

// TransportMode selects the transport source.
type TransportMode int

const (
	TransportInternal TransportMode = iota
	TransportDriver
	TransportPlugin
	TransportBridge
)

func (m TransportMode) String() string {
	switch m {
	case TransportInternal:
		return "internal"
	case TransportDriver:
		return "driver"
	case TransportPlugin:
		return "plugin"
	case TransportBridge:
		return "bridge"
	default:
		return fmt.Sprintf("transport-mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m TransportMode) Valid() bool { return m >= TransportInternal && m <= TransportBridge }

// ParseProcessMode maps a mode name as returned by String back to the mode.
func ParseProcessMode(s string) (ProcessMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m := ProcessSingleClient; m <= ProcessBridge; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// ParseTransportMode maps a mode name as returned by String back to the mode.
func ParseTransportMode(s string) (TransportMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m := TransportInternal; m <= TransportBridge; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// Defaults applied by Resolve.
const (
	DefaultBufferSize = 512
	DefaultSampleRate = 48000
	DefaultNumPeriods = 2
)

// Plugin limits per process mode.
const (
	MaxRackPlugins     = 16
	MaxPatchbayPlugins = 99
)

// Options are the user preferences Resolve works from. Zero values select defaults.
type Options struct {
	ProcessMode ProcessMode
	BufferSize  int
	SampleRate  float64
	NumPeriods  int
}

// Resolved is the concrete configuration.
type Resolved struct {
	ProcessMode ProcessMode
	BufferSize  int
	SampleRate  float64
	NumPeriods  int
	MaxPlugins  int
}

// Resolve applies defaults to unset fields and derives the plugin limit.
func Resolve(o Options) Resolved {
	buf := o.BufferSize
	if buf <= 0 {
		buf = DefaultBufferSize
	}
	rate := o.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	periods := o.NumPeriods
	if periods < 2 || periods > 3 {
		periods = DefaultNumPeriods
	}
	return Resolved{
		ProcessMode: o.ProcessMode,
		BufferSize:  buf,
		SampleRate:  rate,
		NumPeriods:  periods,
		MaxPlugins:  MaxPlugins(o.ProcessMode),
	}
}

// MaxPlugins returns the registry capacity for mode.
func MaxPlugins(mode ProcessMode) int {
	switch mode {
	case ProcessContinuousRack:
		return MaxRackPlugins
	case ProcessBridge:
		return 1
	default:
		return MaxPatchbayPlugins
	}
}
