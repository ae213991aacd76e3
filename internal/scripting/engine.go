package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM that plans each simulation tick.
// Single-goroutine access only (tick loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: core/ first, then scenario/.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "scenario"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) Close() { e.vm.Close() }

// TickContext is the world state handed to plan_tick.
type TickContext struct {
	Tick       uint64
	Entities   int // live entities
	Components int // live components over all pools
	Refs       int // weak refs held by the churn driver
	Stale      uint64
}

// TickPlan is how much work the churn system does this tick.
type TickPlan struct {
	Spawn   int
	Attach  int
	Detach  int
	Destroy int
	Acquire int
	Release int
	Types   []string // attach only these types; empty means any
}

// DefaultPlan is used when no script defines plan_tick or the script fails.
var DefaultPlan = TickPlan{Spawn: 1, Attach: 2, Detach: 1, Destroy: 1, Acquire: 1, Release: 1}

// Plan calls the Lua plan_tick function.
func (e *Engine) Plan(ctx TickContext) TickPlan {
	fn := e.vm.GetGlobal("plan_tick")
	if fn == lua.LNil {
		return DefaultPlan
	}

	t := e.vm.NewTable()
	t.RawSetString("tick", lua.LNumber(ctx.Tick))
	t.RawSetString("entities", lua.LNumber(ctx.Entities))
	t.RawSetString("components", lua.LNumber(ctx.Components))
	t.RawSetString("refs", lua.LNumber(ctx.Refs))
	t.RawSetString("stale", lua.LNumber(ctx.Stale))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua plan_tick error", zap.Error(err))
		return DefaultPlan
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua plan_tick returned non-table")
		return DefaultPlan
	}

	plan := TickPlan{
		Spawn:   count(rt, "spawn"),
		Attach:  count(rt, "attach"),
		Detach:  count(rt, "detach"),
		Destroy: count(rt, "destroy"),
		Acquire: count(rt, "acquire"),
		Release: count(rt, "release"),
	}
	if types, ok := rt.RawGetString("types").(*lua.LTable); ok {
		types.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				plan.Types = append(plan.Types, string(s))
			}
		})
	}
	return plan
}

// count reads a non-negative integer field; missing or negative is zero.
func count(t *lua.LTable, key string) int {
	n := int(lua.LVAsNumber(t.RawGetString(key)))
	if n < 0 {
		return 0
	}
	return n
}
