//go:build rtmidi

package main

// rtmidi needs cgo and the ALSA (Linux) or CoreMIDI (macOS) headers, so it is
// opt-in: go build -tags rtmidi ./cmd/plughost
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
