package script

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/Shopify/go-lua"
	"github.com/kode4food/lru"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// luaEnv compiles Lua handler modules and runs their handlers in
	// sandboxed, pooled states
	luaEnv struct {
		cache     *lru.Cache[*compiledModule]
		statePool chan *lua.State
	}

	compiledModule struct {
		ref      string
		bytecode []byte
		handlers []string
	}
)

const (
	luaCacheSize        = 256
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaTableValueIndex  = -3
	luaGlobalTableName  = "_G"
	luaHandlersField    = "handlers"
	luaResultKey        = "result"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
	ErrLuaModule    = errors.New("lua module must return a table")
	ErrLuaHandler   = errors.New("lua handler not found")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

func newLuaEnv() *luaEnv {
	return &luaEnv{
		cache:     lru.NewCache[*compiledModule](luaCacheSize),
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

// compile returns the cached module for the source, compiling it and
// listing its handler functions on first use
func (e *luaEnv) compile(ref string, src []byte) (*compiledModule, error) {
	return e.cache.Get(hashSource(ref, src), func() (*compiledModule, error) {
		L := lua.NewState()
		e.setupSandbox(L)
		if err := lua.LoadBuffer(L, string(src), ref, "t"); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLuaLoad, ref, err)
		}

		var buf bytes.Buffer
		if err := L.Dump(&buf); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLuaLoad, ref, err)
		}
		mod := &compiledModule{ref: ref, bytecode: buf.Bytes()}

		names, err := e.handlerNames(mod)
		if err != nil {
			return nil, err
		}
		mod.handlers = names
		return mod, nil
	})
}

func (e *luaEnv) handlerNames(mod *compiledModule) ([]string, error) {
	L := e.getState()
	defer e.returnState(L)

	if err := e.pushHandlers(L, mod); err != nil {
		return nil, err
	}
	var names []string
	L.PushNil()
	for L.Next(-2) {
		if L.TypeOf(-2) == lua.TypeString && L.IsFunction(-1) {
			name, _ := L.ToString(-2)
			names = append(names, name)
		}
		L.Pop(1)
	}
	slices.Sort(names)
	return names, nil
}

// call runs the named handler with the payload. A returned table becomes
// the output payload, any other non-nil value is wrapped under "result"
func (e *luaEnv) call(
	mod *compiledModule, name string, p api.Payload,
) (api.Payload, error) {
	L := e.getState()
	defer e.returnState(L)

	if err := e.pushHandlers(L, mod); err != nil {
		return nil, err
	}
	L.Field(-1, name)
	if !L.IsFunction(-1) {
		return nil, fmt.Errorf("%w: %s in %s", ErrLuaHandler, name, mod.ref)
	}
	goToLua(L, map[string]any(p))
	if err := L.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w",
			ErrLuaExecution, mod.ref, name, err)
	}

	switch v := luaToGo(L, -1).(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return api.Payload(v), nil
	default:
		return api.Payload{luaResultKey: v}, nil
	}
}

// pushHandlers evaluates the module chunk and leaves its handlers table
// on top of the stack
func (e *luaEnv) pushHandlers(L *lua.State, mod *compiledModule) error {
	e.setupSandbox(L)
	err := L.Load(bytes.NewReader(mod.bytecode), mod.ref, "b")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLuaLoad, mod.ref, err)
	}
	if err := L.ProtectedCall(0, 1, 0); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLuaExecution, mod.ref, err)
	}
	if !L.IsTable(-1) {
		return fmt.Errorf("%w: %s", ErrLuaModule, mod.ref)
	}
	L.Field(-1, luaHandlersField)
	if !L.IsTable(-1) {
		return fmt.Errorf("%w: %s", api.ErrMissingHandlers, mod.ref)
	}
	return nil
}

func (e *luaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *luaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *luaEnv) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case e.statePool <- L:
	default:
	}
}

func hashSource(ref string, src []byte) string {
	h := sha256.New()
	_, _ = h.Write([]byte(ref))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case api.Payload:
		pushLuaMap(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaTableValueIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		goToLua(L, val)
		L.SetTable(luaTableValueIndex)
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToAny(L, index)
	default:
		return nil
	}
}

// luaTableToAny converts a sequence table to []any and any other table,
// including an empty one, to map[string]any
func luaTableToAny(L *lua.State, index int) any {
	abs := index
	if index < 0 {
		abs = L.Top() + index + 1
	}

	length := L.RawLength(abs)
	count := 0
	L.PushNil()
	for L.Next(abs) {
		count++
		L.Pop(1)
	}

	if length > 0 && count == length {
		arr := make([]any, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(abs, i)
			arr[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return arr
	}

	res := make(map[string]any, count)
	L.PushNil()
	for L.Next(abs) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		res[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return res
}
