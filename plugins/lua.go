package plugins

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Scripted is an internal plugin defined by a Lua script. The script must set a
// global table
//
//	plugin = { name = "...", hints = { "rtsafe", ... }, parameters = { { name = "...", symbol = "...", min = 0, max = 1, default = 0 } } }
//
// and may define the global functions idle() and set_parameter(index, value).
// Parameter indices passed to the script are zero based.
//
// The Lua state is not goroutine safe; every call into it holds mu. Scripts
// never run on the processing goroutine.
type Scripted struct {
	Base
	Script string

	mu     sync.Mutex
	L      *lua.LState
	closed bool

	errMu sync.Mutex
	err   error
}

// NewScripted loads script into a sandboxed Lua state and builds the instance it describes.
func NewScripted(req Request, script string) (*Scripted, error) {
	L := newSandbox()
	if err := doProtected(func() error { return L.DoFile(script) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua script %s: %w", script, err)
	}
	tbl, ok := L.GetGlobal("plugin").(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("lua script %s: global 'plugin' table missing", script)
	}

	info := InfoFromRequest(req)
	if name, ok := tbl.RawGetString("name").(lua.LString); ok && info.Name == "" {
		info.Name = string(name)
	}
	if info.Name == "" {
		info.Name = req.Label
	}
	if hints, ok := tbl.RawGetString("hints").(*lua.LTable); ok {
		hints.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				info.Hints |= HintFromString(string(s))
			}
		})
	}

	var params Parameters
	if pt, ok := tbl.RawGetString("parameters").(*lua.LTable); ok {
		n := pt.Len()
		for i := 1; i <= n; i++ {
			entry, ok := pt.RawGetInt(i).(*lua.LTable)
			if !ok {
				continue
			}
			params = append(params, Parameter{
				DisplayName:  luaString(entry, "name"),
				Identifier:   luaString(entry, "symbol"),
				MinValue:     luaNumber(entry, "min", 0),
				MaxValue:     luaNumber(entry, "max", 1),
				DefaultValue: luaNumber(entry, "default", 0),
				Unit:         luaString(entry, "unit"),
				IsWritable:   true,
			})
		}
	}

	s := &Scripted{Script: script, L: L}
	s.Init(req.ID, info, params)
	return s, nil
}

// newSandbox returns a state with only the base, table, string and math
// libraries and with the file loading builtins removed.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func doProtected(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// call invokes a global function if the script defines it.
func (s *Scripted) call(fn string, args ...lua.LValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	f, ok := s.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil
	}
	return doProtected(func() error {
		return s.L.CallByParam(lua.P{Fn: f, NRet: 0, Protect: true}, args...)
	})
}

// Idle runs the script's idle() hook. A script error disables the instance and
// is kept for Err.
func (s *Scripted) Idle() {
	if err := s.call("idle"); err != nil {
		s.errMu.Lock()
		s.err = fmt.Errorf("%s: idle: %w", s.Name(), err)
		s.errMu.Unlock()
		s.SetEnabled(false)
	}
}

// Err returns the script error that disabled the instance, if any.
func (s *Scripted) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// SetParameterValue stores v and forwards the clamped value to set_parameter().
func (s *Scripted) SetParameterValue(index int, v float32) error {
	if err := s.Base.SetParameterValue(index, v); err != nil {
		return err
	}
	stored, _ := s.Base.ParameterValue(index)
	if err := s.call("set_parameter", lua.LNumber(index), lua.LNumber(stored)); err != nil {
		return fmt.Errorf("%s: set_parameter: %w", s.Name(), err)
	}
	return nil
}

// LoadState restores state and replays every parameter into the script.
func (s *Scripted) LoadState(st StateSave) error {
	if err := s.Base.LoadState(st); err != nil {
		return err
	}
	for i := range s.Base.Parameters() {
		v, _ := s.Base.ParameterValue(i)
		if err := s.call("set_parameter", lua.LNumber(i), lua.LNumber(v)); err != nil {
			return fmt.Errorf("%s: set_parameter: %w", s.Name(), err)
		}
	}
	return nil
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.L.Close()
	}
	s.mu.Unlock()
	return s.Base.Close()
}

// Global returns a global script value as a Go value (string, float64, bool or nil).
func (s *Scripted) Global(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	switch v := s.L.GetGlobal(name).(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case lua.LBool:
		return bool(v)
	default:
		return nil
	}
}

func luaString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func luaNumber(t *lua.LTable, key string, def float32) float32 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return float32(n)
	}
	return def
}
