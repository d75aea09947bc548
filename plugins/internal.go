package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Labels of the built-in internal plugins.
const (
	LabelPassthrough = "passthrough"
	LabelGain        = "gain"
	LabelAudioFile   = "audiofile"
	LabelMIDIFile    = "midifile"
)

// InternalLoader instantiates internal plugins: Go built-ins first, then Lua
// scripts found at <ResourceDir>/internal/<label>.lua.
type InternalLoader struct {
	ResourceDir string
}

// Load implements Loader.
func (l InternalLoader) Load(ctx context.Context, req Request) (Plugin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info := InfoFromRequest(req)
	if info.Name == "" {
		info.Name = req.Label
	}
	switch req.Label {
	case LabelPassthrough:
		p := &Passthrough{}
		info.Hints |= HintIsRTSafe
		p.Init(req.ID, info, nil)
		return p, nil
	case LabelGain:
		g := &Gain{}
		info.Hints |= HintIsRTSafe | HintCanDryWet | HintCanVolume
		g.Init(req.ID, info, Parameters{
			{DisplayName: "Gain", Identifier: "gain", MinValue: 0, MaxValue: 4, DefaultValue: 1, IsWritable: true, CanRamp: true},
		})
		return g, nil
	case LabelAudioFile, LabelMIDIFile:
		fp := &FilePlayer{}
		info.Hints |= HintCanVolume
		fp.Init(req.ID, info, nil)
		return fp, nil
	}
	if l.ResourceDir == "" {
		return nil, fmt.Errorf("unknown internal plugin %q", req.Label)
	}
	script := filepath.Join(l.ResourceDir, "internal", req.Label+".lua")
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("unknown internal plugin %q: %w", req.Label, err)
	}
	return NewScripted(req, script)
}

// Passthrough leaves its buffers untouched.
type Passthrough struct {
	Base
}

func (p *Passthrough) Process(buf [][]float32, frames int) {}

// Gain multiplies its input by the gain parameter and volume.
type Gain struct {
	Base
}

func (g *Gain) Process(buf [][]float32, frames int) {
	v, err := g.ParameterValue(0)
	if err != nil {
		return
	}
	v *= g.Volume()
	for _, ch := range buf {
		n := min(frames, len(ch))
		for i := 0; i < n; i++ {
			ch[i] *= v
		}
	}
}

// FilePlayer is the internal audio/MIDI file player. The file is named by the
// "file" custom data entry; Idle tracks whether it is still readable.
type FilePlayer struct {
	Base
	missing atomic.Bool
}

// Missing reports whether the last idle check could not find the file.
func (f *FilePlayer) Missing() bool { return f.missing.Load() }

func (f *FilePlayer) Idle() {
	path, ok := f.CustomValue("file")
	if !ok || path == "" {
		f.missing.Store(true)
		return
	}
	_, err := os.Stat(path)
	f.missing.Store(err != nil)
}
