package worker

import (
	"encoding/json"
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// maxConvertDepth bounds recursion when converting between JSON and Lua
// values, so a self-referential table errors instead of overflowing the
// stack.
const maxConvertDepth = 64

// jsonToLua decodes a JSON payload into a Lua value. An empty payload
// becomes nil, matching a handler invoked with no event body.
func jsonToLua(L *lua.LState, payload []byte) (lua.LValue, error) {
	if len(payload) == 0 {
		return lua.LNil, nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return goToLua(L, v, 0)
}

func goToLua(L *lua.LState, v any, depth int) (lua.LValue, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("value nesting exceeds depth %d", maxConvertDepth)
	}

	switch val := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(val), nil
	case float64:
		return lua.LNumber(val), nil
	case string:
		return lua.LString(val), nil
	case []any:
		tbl := L.NewTable()
		for i, elem := range val {
			lv, err := goToLua(L, elem, depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSetInt(i+1, lv)
		}
		return tbl, nil
	case map[string]any:
		tbl := L.NewTable()
		for k, elem := range val {
			lv, err := goToLua(L, elem, depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value type %T", v)
	}
}

// luaToJSON encodes a Lua value as JSON. Tables with contiguous integer
// keys from 1 encode as arrays; all other tables encode as objects with
// stringified keys.
func luaToJSON(v lua.LValue) ([]byte, error) {
	goVal, err := luaToGo(v, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(goVal)
}

func luaToGo(v lua.LValue, depth int) (any, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("value nesting exceeds depth %d", maxConvertDepth)
	}

	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		return tableToGo(val, depth)
	default:
		return nil, fmt.Errorf("unsupported Lua value type %s", v.Type())
	}
}

func tableToGo(tbl *lua.LTable, depth int) (any, error) {
	n := tbl.MaxN()
	if n > 0 {
		// Array-shaped: contiguous integer keys 1..n and nothing else.
		count := 0
		tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if count == n {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				elem, err := luaToGo(tbl.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				arr = append(arr, elem)
			}
			return arr, nil
		}
	}

	obj := make(map[string]any)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'g', -1, 64)
		default:
			convErr = fmt.Errorf("unsupported table key type %s", k.Type())
			return
		}
		elem, err := luaToGo(v, depth+1)
		if err != nil {
			convErr = err
			return
		}
		obj[key] = elem
	})
	if convErr != nil {
		return nil, convErr
	}
	return obj, nil
}
