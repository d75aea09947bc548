// Package plugins defines the plugin model hosted by the engine and the factory
// that turns a (binary type, plugin type, locator) triple into a live instance.
//
// Model:
//   - Plugin is the contract every hosted instance satisfies; Base implements the
//     format independent part and is embedded by every concrete instance.
//   - Loaders instantiate one plugin format in-process. A Bridger instantiates a
//     plugin out-of-process through a bridge executable.
//   - Factory applies the dispatch rule (internal, bridged, in-process) and maps
//     loader failures onto ErrLoadFailure / ErrUnsupported.
package plugins

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Factory and loader errors. The engine maps them onto its own error taxonomy.
var (
	// ErrUnsupported is returned when no loader or bridge can handle a request.
	ErrUnsupported = errors.New("unsupported plugin configuration")

	// ErrLoadFailure is returned when a loader could not produce an instance.
	ErrLoadFailure = errors.New("plugin load failed")

	// ErrInvalidRequest is returned for requests missing mandatory fields.
	ErrInvalidRequest = errors.New("invalid plugin request")
)

// BinaryType is the architecture a plugin binary was built for.
type BinaryType int

const (
	BinaryNone BinaryType = iota
	BinaryPosix32
	BinaryPosix64
	BinaryWin32
	BinaryWin64
	BinaryOther
)

// String returns the binary type name used in project files.
func (b BinaryType) String() string {
	switch b {
	case BinaryNone:
		return "NONE"
	case BinaryPosix32:
		return "POSIX32"
	case BinaryPosix64:
		return "POSIX64"
	case BinaryWin32:
		return "WIN32"
	case BinaryWin64:
		return "WIN64"
	case BinaryOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// BinaryTypeFromString parses a binary type name (case-insensitive).
// An empty string maps to the host's native binary type.
func BinaryTypeFromString(s string) (BinaryType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return NativeBinary(), nil
	case "NONE":
		return BinaryNone, nil
	case "POSIX32":
		return BinaryPosix32, nil
	case "POSIX64":
		return BinaryPosix64, nil
	case "WIN32":
		return BinaryWin32, nil
	case "WIN64":
		return BinaryWin64, nil
	case "OTHER":
		return BinaryOther, nil
	default:
		return BinaryNone, fmt.Errorf("unknown binary type %q", s)
	}
}

// NativeBinary returns the binary type matching the running host.
func NativeBinary() BinaryType {
	return binaryFor(runtime.GOOS, runtime.GOARCH)
}

func binaryFor(goos, goarch string) BinaryType {
	is64 := strings.HasSuffix(goarch, "64") || goarch == "s390x"
	switch goos {
	case "windows":
		if is64 {
			return BinaryWin64
		}
		return BinaryWin32
	case "linux", "darwin", "freebsd", "netbsd", "openbsd", "dragonfly", "solaris", "illumos":
		if is64 {
			return BinaryPosix64
		}
		return BinaryPosix32
	default:
		return BinaryOther
	}
}

// PluginType is the plugin format.
type PluginType int

const (
	TypeNone PluginType = iota
	TypeInternal
	TypeLADSPA
	TypeDSSI
	TypeLV2
	TypeVST
	TypeVST3
	TypeAU
	TypeGIG
	TypeSF2
	TypeSFZ
)

var pluginTypeNames = [...]string{
	TypeNone:     "NONE",
	TypeInternal: "INTERNAL",
	TypeLADSPA:   "LADSPA",
	TypeDSSI:     "DSSI",
	TypeLV2:      "LV2",
	TypeVST:      "VST",
	TypeVST3:     "VST3",
	TypeAU:       "AU",
	TypeGIG:      "GIG",
	TypeSF2:      "SF2",
	TypeSFZ:      "SFZ",
}

// String returns the format name used in project files.
func (t PluginType) String() string {
	if t < 0 || int(t) >= len(pluginTypeNames) {
		return "UNKNOWN"
	}
	return pluginTypeNames[t]
}

// TypeFromString parses a format name (case-insensitive). Unknown names yield TypeNone.
func TypeFromString(s string) PluginType {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range pluginTypeNames {
		if name == s {
			return PluginType(i)
		}
	}
	return TypeNone
}

// IsSoundBank reports whether the format is a sample based sound bank.
func (t PluginType) IsSoundBank() bool {
	return t == TypeGIG || t == TypeSF2 || t == TypeSFZ
}

// Hints describe optional plugin capabilities.
type Hints uint32

const (
	HintIsBridge Hints = 1 << iota
	HintIsRTSafe
	HintIsSynth
	HintHasCustomUI
	HintCanDryWet
	HintCanVolume
	HintCanBalance
	HintNeedsFixedBuffers
	HintUses16Outs
)

// Has reports whether every bit in h2 is set.
func (h Hints) Has(h2 Hints) bool { return h&h2 == h2 }

var hintNames = map[string]Hints{
	"bridge":       HintIsBridge,
	"rtsafe":       HintIsRTSafe,
	"synth":        HintIsSynth,
	"customui":     HintHasCustomUI,
	"drywet":       HintCanDryWet,
	"volume":       HintCanVolume,
	"balance":      HintCanBalance,
	"fixedbuffers": HintNeedsFixedBuffers,
	"16outs":       HintUses16Outs,
}

// HintFromString maps a lower-case hint name to its bit; unknown names return 0.
func HintFromString(s string) Hints {
	return hintNames[strings.ToLower(strings.TrimSpace(s))]
}
