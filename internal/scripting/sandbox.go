// Package scripting runs ability entry hooks in a sandboxed GopherLua VM.
// It has no dependency on battle packages; every effect a script requests
// goes through the Host passed to each call.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit caps the Lua opcodes one load or hook call may run
// when no limit is configured.
const DefaultInstructionLimit = 100_000

// blockedGlobals are removed after the base library is opened.
var blockedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"}

// blockedMath are removed from the math table. Hooks must replay identically,
// so the only randomness in a battle is the seeded battle RNG.
var blockedMath = []string{"random", "randomseed"}

// opBudget is a context that cancels itself once its opcode budget is spent.
// GopherLua polls Done once per executed opcode.
type opBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opBudget) Done() <-chan struct{} {
	if b.left.Add(-1) < 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// withBudget derives a context from parent that ends after limit opcodes.
//
// Precondition: limit > 0.
func withBudget(parent context.Context, limit int) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	b := &opBudget{Context: ctx, cancel: cancel}
	b.left.Store(int64(limit))
	return b, cancel
}

// NewSandboxedState returns an LState with only the base, table, string and
// math libraries, the globals in blockedGlobals and math.random removed, and
// an opcode budget of instLimit installed for the scripts loaded next.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: the caller owns the LState and must Close it.
func NewSandboxedState(instLimit int) *lua.LState {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if math, ok := L.GetGlobal("math").(*lua.LTable); ok {
		for _, name := range blockedMath {
			math.RawSetString(name, lua.LNil)
		}
	}
	// The load budget is released when the VM is closed or a call installs its own.
	ctx, _ := withBudget(context.Background(), instLimit) //nolint:govet
	L.SetContext(ctx)
	return L
}
