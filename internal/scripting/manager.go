package scripting

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EntryInfo is a snapshot of the Pokémon whose switch-in fired a hook.
type EntryInfo struct {
	Side    string
	Species string
	HP      int
	MaxHP   int
	Weather string
}

// Host applies the effects a hook requests to the battle being resolved.
type Host interface {
	SetWeather(kind string, turns int)
	Boost(side, stat string, stages int)
	Log(msg string)
}

// Manager owns one sandboxed LState holding every ability hook.
//
// Manager is safe for concurrent CallEntryHook after loading completes; calls
// are serialized because an LState is single-threaded.
type Manager struct {
	mu     sync.Mutex
	state  *lua.LState
	limit  int
	host   Host
	logger *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// LoadDir executes every *.lua file in dir in lexicographic order.
//
// Precondition: dir must be a readable directory.
// Postcondition: replaces any previously loaded VM; returns error on Lua load failure.
func (m *Manager) LoadDir(dir string, instLimit int) error {
	return m.LoadFS(os.DirFS(dir), ".", instLimit)
}

// LoadFS executes every *.lua file directly under dir in fsys.
func (m *Manager) LoadFS(fsys fs.FS, dir string, instLimit int) error {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, p := range luaFiles {
		src, err := fs.ReadFile(fsys, p)
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: reading %q: %w", p, err)
		}
		fn, err := L.Load(bytes.NewReader(src), p)
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: compiling %q: %w", p, err)
		}
		L.Push(fn)
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", p, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
	}
	m.state = L
	m.limit = instLimit
	return nil
}

// CallEntryHook calls the named global with a table describing the entering
// Pokémon. Effects are routed to host for the duration of the call. Runtime
// errors and instruction-limit aborts are logged at Warn and never propagated.
//
// Postcondition: returns true only if the hook exists and completed.
func (m *Manager) CallEntryHook(hook string, info EntryInfo, host Host) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		m.logger.Info("scripting: no scripts loaded", zap.String("hook", hook))
		return false
	}
	L := m.state
	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return false
	}

	ctx, cancel := withBudget(context.Background(), m.limit)
	defer cancel()
	L.SetContext(ctx)
	m.host = host
	defer func() { m.host = nil }()

	arg := L.NewTable()
	arg.RawSetString("side", lua.LString(info.Side))
	arg.RawSetString("species", lua.LString(info.Species))
	arg.RawSetString("hp", lua.LNumber(info.HP))
	arg.RawSetString("max_hp", lua.LNumber(info.MaxHP))
	arg.RawSetString("weather", lua.LString(info.Weather))

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, arg); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}
