package worker

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaExecutor hosts function handler code in an embedded Lua interpreter.
// A handler "pkg.func" resolves to the function `func` exported from
// `pkg.lua` in the install directory: the file is executed once at Init
// and must either return a module table containing the function, or
// define it as a global.
//
// Handler signature: function(event) -> result. The event argument and
// the returned result cross the boundary as JSON (see luajson.go).
type LuaExecutor struct {
	mu    sync.Mutex
	state *lua.LState
	fn    *lua.LFunction
}

// NewLuaExecutor creates an executor with no loaded handler. Init loads
// the handler module.
func NewLuaExecutor() *LuaExecutor {
	return &LuaExecutor{}
}

// Init loads the handler module from installDir and resolves the entry
// point function.
func (e *LuaExecutor) Init(installDir, handler string) error {
	pkg, fnName, ok := strings.Cut(handler, ".")
	if !ok {
		return fmt.Errorf("handler %q is not of the form pkg.func", handler)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	L := lua.NewState()
	modulePath := filepath.Join(installDir, pkg+".lua")
	if err := L.DoFile(modulePath); err != nil {
		L.Close()
		return fmt.Errorf("load handler module %s: %w", modulePath, err)
	}

	// Prefer the module-table convention; fall back to a global function
	// for single-file handlers that skip the return.
	var fn lua.LValue = lua.LNil
	if tbl, isTable := L.Get(-1).(*lua.LTable); isTable {
		fn = L.GetField(tbl, fnName)
	}
	if fn == lua.LNil {
		fn = L.GetGlobal(fnName)
	}
	if fn == lua.LNil {
		L.Close()
		return fmt.Errorf("handler module %s does not define %q", modulePath, fnName)
	}
	lfn, isFn := fn.(*lua.LFunction)
	if !isFn {
		L.Close()
		return fmt.Errorf("handler %s.%s is not a function", pkg, fnName)
	}

	if e.state != nil {
		e.state.Close()
	}
	e.state = L
	e.fn = lfn
	return nil
}

// Invoke calls the handler with the decoded event payload and returns the
// JSON encoding of its result. A Lua state is single-threaded, so
// executions serialize under the executor's mutex.
func (e *LuaExecutor) Invoke(payload []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, fmt.Errorf("executor not initialized")
	}

	event, err := jsonToLua(e.state, payload)
	if err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}

	if err := e.state.CallByParam(lua.P{Fn: e.fn, NRet: 1, Protect: true}, event); err != nil {
		return nil, fmt.Errorf("handler raised: %w", err)
	}
	ret := e.state.Get(-1)
	e.state.Pop(1)

	out, err := luaToJSON(ret)
	if err != nil {
		return nil, fmt.Errorf("encode handler result: %w", err)
	}
	return out, nil
}

// Close releases the Lua state.
func (e *LuaExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
	return nil
}
