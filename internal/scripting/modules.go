package scripting

import lua "github.com/yuin/gopher-lua"

// RegisterModules registers the engine.battle table into L. Its functions
// forward to the Host of the call in progress and are no-ops outside one.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine.battle.set_weather, engine.battle.boost and
// engine.battle.log are defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	bt := L.NewTable()
	L.SetFuncs(bt, map[string]lua.LGFunction{
		"set_weather": func(L *lua.LState) int {
			kind := L.CheckString(1)
			turns := L.OptInt(2, 5)
			if m.host != nil {
				m.host.SetWeather(kind, turns)
			}
			return 0
		},
		"boost": func(L *lua.LState) int {
			side := L.CheckString(1)
			stat := L.CheckString(2)
			stages := L.CheckInt(3)
			if m.host != nil {
				m.host.Boost(side, stat, stages)
			}
			return 0
		},
		"log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			if m.host != nil {
				m.host.Log(msg)
			}
			return 0
		},
	})
	engine.RawSetString("battle", bt)
	L.SetGlobal("engine", engine)
}
