// Package scriptloader implements the script loader (spec.md §4.5):
// compiling a scripted extension module into the one process-wide Lua
// interpreter, enumerating its systems and command names, and binding the
// world into a scoped interpreter global for the duration of a single
// invocation.
//
// Every module shares the same *lua.LState (spec.md §5, "exactly one
// process-wide interpreter instance ... it is not reentrant"); Loader
// serializes access to it with a mutex so two reload passes never
// interleave Lua calls.
package scriptloader

import (
	"context"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/xerrors"

	"github.com/eeks-rt/eeks"
)

const worldGlobal = "world"

// Loader owns the single shared Lua interpreter and every module's table
// by name, so command routing (spec.md §6) can locate a module's exported
// command functions after its systems() declaration hook has returned.
type Loader struct {
	mu      sync.Mutex
	L       *lua.LState
	modules map[string]*lua.LTable
}

// New creates the process-wide interpreter.
func New() *Loader {
	return &Loader{L: lua.NewState(), modules: make(map[string]*lua.LTable)}
}

// Close tears down the interpreter. Call once, at process exit.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.L.Close()
}

// Load compiles the module at path, installs the declaration hooks,
// executes its systems() entry point, and returns the enumerated
// descriptors and command names (spec.md §4.5). The module's chunk must
// evaluate to a table; its `systems` function field and its `commands`
// array of string command names are both optional.
func (l *Loader) Load(name, path string) (*eeks.ScriptModule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fn, err := l.L.LoadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("script loader: compile %s: %w", path, err)
	}
	l.L.Push(fn)
	if err := l.L.PCall(0, 1, nil); err != nil {
		return nil, xerrors.Errorf("script loader: execute %s: %w", path, err)
	}
	ret := l.L.Get(-1)
	l.L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, xerrors.Errorf("script loader: module %s did not return a table", name)
	}

	var descriptors []eeks.SystemDescriptor
	l.installHooks(&descriptors)
	defer l.teardownHooks()

	systemsFn := tbl.RawGetString("systems")
	if systemsFn != lua.LNil {
		if err := l.L.CallByParam(lua.P{Fn: systemsFn, NRet: 0, Protect: true}); err != nil {
			return nil, xerrors.Errorf("script loader: %s.systems(): %w", name, err)
		}
	}

	// Scripted systems are dispatched by looking up <id> in the module
	// table at invocation time (spec.md §4.9), not through a captured
	// function pointer: the interpreter, not the descriptor, owns the
	// callable's identity.
	for i := range descriptors {
		id := descriptors[i].ID
		moduleName := name
		descriptors[i].Invoke = func(ctx context.Context, world eeks.World) error {
			_, err := l.invoke(moduleName, id, world, nil)
			return err
		}
	}

	var commands []string
	if cmds, ok := tbl.RawGetString("commands").(*lua.LTable); ok {
		cmds.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				commands = append(commands, string(s))
			}
		})
	}

	l.modules[name] = tbl
	return &eeks.ScriptModule{Systems: descriptors, Commands: commands}, nil
}

// Unload removes name's module table; a subsequent Load is a fresh
// compile (spec.md §4.5, "reload is equivalent to unload-then-load").
func (l *Loader) Unload(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.modules, name)
}

// InvokeCommand evaluates `require("<module>").<cmd>(world, args...)`
// (spec.md §6) and returns its string result.
func (l *Loader) InvokeCommand(ctx context.Context, module, cmd string, world eeks.World, args []string) (string, error) {
	return l.invoke(module, cmd, world, args)
}

// HasCommand reports whether module currently exports cmd, used by the
// command router to decide which scripted module should handle a token
// (spec.md §6).
func (l *Loader) HasCommand(module, cmd string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	tbl, ok := l.modules[module]
	if !ok {
		return false
	}
	return tbl.RawGetString(cmd) != lua.LNil
}

// invoke binds world into the well-known "world" global, calls
// module[entryPoint](world, args...), tears the binding down, and returns
// the call's single string result (spec.md §4.9: "no reference to the
// world may survive the scope").
func (l *Loader) invoke(module, entryPoint string, world eeks.World, args []string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tbl, ok := l.modules[module]
	if !ok {
		return "", xerrors.Errorf("script loader: module %q is not loaded", module)
	}
	fn := tbl.RawGetString(entryPoint)
	if fn == lua.LNil {
		return "", xerrors.Errorf("script loader: module %q has no entry point %q", module, entryPoint)
	}

	l.L.SetGlobal(worldGlobal, l.newWorldHandle(world))
	defer l.L.SetGlobal(worldGlobal, lua.LNil)

	callArgs := make([]lua.LValue, 0, len(args)+1)
	callArgs = append(callArgs, l.L.GetGlobal(worldGlobal))
	for _, a := range args {
		callArgs = append(callArgs, lua.LString(a))
	}

	if err := l.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, callArgs...); err != nil {
		return "", xerrors.Errorf("script loader: %s.%s: %w", module, entryPoint, err)
	}
	ret := l.L.Get(-1)
	l.L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return string(s), nil
	}
	return "", nil
}

const builderMetatableName = "eeks.system_builder"

// installHooks installs new_system/finalize_system as globals, mirroring
// the two interpreter hooks spec.md §4.5 describes: one that starts a
// system builder, one that finalizes it into dest.
func (l *Loader) installHooks(dest *[]eeks.SystemDescriptor) {
	collector := eeks.NewSystemsCollector(dest)

	mt := l.L.NewTypeMetatable(builderMetatableName)
	l.L.SetField(mt, "__index", l.L.SetFuncs(l.L.NewTable(), map[string]lua.LGFunction{
		"run_after": func(L *lua.LState) int {
			b := checkBuilder(L)
			b.RunsAfter(L.CheckString(2))
			L.Push(L.CheckUserData(1))
			return 1
		},
		"run_before": func(L *lua.LState) int {
			b := checkBuilder(L)
			b.RunsBefore(L.CheckString(2))
			L.Push(L.CheckUserData(1))
			return 1
		},
	}))

	l.L.SetGlobal("new_system", l.L.NewFunction(func(L *lua.LState) int {
		group, id := L.CheckString(1), L.CheckString(2)
		ud := L.NewUserData()
		ud.Value = collector.New(group, id)
		L.SetMetatable(ud, L.GetTypeMetatable(builderMetatableName))
		L.Push(ud)
		return 1
	}))
	l.L.SetGlobal("finalize_system", l.L.NewFunction(func(L *lua.LState) int {
		collector.Finalize(checkBuilder(L))
		return 0
	}))
}

// teardownHooks clears the declaration-time globals once systems() has
// returned, per spec.md §4.5's "scoped context that tears down the hooks
// on return".
func (l *Loader) teardownHooks() {
	l.L.SetGlobal("new_system", lua.LNil)
	l.L.SetGlobal("finalize_system", lua.LNil)
}

func checkBuilder(L *lua.LState) *eeks.SystemBuilder {
	ud := L.CheckUserData(1)
	b, ok := ud.Value.(*eeks.SystemBuilder)
	if !ok {
		L.ArgError(1, "expected a system builder")
	}
	return b
}

// newWorldHandle wraps world as the minimal Lua-callable surface a
// scripted extension needs: forwarding a command to the world. Full ECS
// query access is an external collaborator's concern (spec.md §1, out of
// scope); the interpreter binding only needs to round-trip command() calls.
func (l *Loader) newWorldHandle(world eeks.World) *lua.LTable {
	tbl := l.L.NewTable()
	l.L.SetFuncs(tbl, map[string]lua.LGFunction{
		"command": func(L *lua.LState) int {
			n := L.GetTop()
			tokens := make([]string, 0, n-1)
			for i := 2; i <= n; i++ {
				tokens = append(tokens, L.CheckString(i))
			}
			result, err := world.Command(tokens)
			if err != nil {
				L.RaiseError("%v", err)
				return 0
			}
			L.Push(lua.LString(result))
			return 1
		},
	})
	return tbl
}
